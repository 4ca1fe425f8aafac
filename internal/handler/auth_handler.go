// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/essaybinder/internal/auth"
	"github.com/hitoshi/essaybinder/internal/credential"
	"github.com/hitoshi/essaybinder/internal/middleware"
	"github.com/hitoshi/essaybinder/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*auth.LoginResult, error)
	RefreshAccessToken(ctx context.Context, userID string) (string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	SessionTTL     time.Duration // sessionCookieの有効期間
	AccessTokenTTL time.Duration // access_token Cookieの有効期間
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	verifier middleware.SessionVerifier
	cookies  middleware.CookieConfig
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, verifier middleware.SessionVerifier, cookies middleware.CookieConfig, config AuthHandlerConfig) *AuthHandler {
	if config.SessionTTL <= 0 {
		config.SessionTTL = 24 * time.Hour
	}
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = time.Hour
	}
	return &AuthHandler{
		service:  service,
		verifier: verifier,
		cookies:  cookies,
		config:   config,
	}
}

// exchangeCodeRequest は認可コード交換リクエストのボディ。
type exchangeCodeRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"codeVerifier"`
	RedirectURI  string `json:"redirectUri"`
}

type exchangeCodeResponse struct {
	Success bool           `json:"success"`
	User    model.Identity `json:"user"`
}

type userResponse struct {
	User model.Identity `json:"user"`
}

// ExchangeCode は認可コードとPKCE verifierをセッションに交換する。
// 失敗した場合はCookieを一切設定しない。
// POST /auth/exchange-code
func (h *AuthHandler) ExchangeCode(w http.ResponseWriter, r *http.Request) {
	var req exchangeCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w, err)
		return
	}
	if req.Code == "" || req.CodeVerifier == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("code and codeVerifier are required"))
		return
	}

	result, err := h.service.ExchangeCode(r.Context(), req.Code, req.CodeVerifier, req.RedirectURI)
	if err != nil {
		if !errors.Is(err, auth.ErrExchangeFailed) {
			slog.Error("token exchange error", slog.String("error", err.Error()))
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewExchangeFailedError())
		return
	}

	h.cookies.Set(w, middleware.AccessTokenCookieName, result.AccessToken, h.config.AccessTokenTTL)
	h.cookies.Set(w, middleware.SessionCookieName, result.SessionToken, h.config.SessionTTL)

	middleware.WriteJSON(w, http.StatusOK, exchangeCodeResponse{Success: true, User: result.Identity})
}

// RefreshToken は保存済みのリフレッシュトークンでaccess_token Cookieを再発行する。
// セッションはこのハンドラー内で検証する。
// POST /auth/refresh-token
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError("No session token"))
		return
	}
	identity, err := h.verifier.Verify(cookie.Value)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError("Token refresh failed"))
		return
	}

	accessToken, err := h.service.RefreshAccessToken(r.Context(), identity.ID)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrNoRefreshToken):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError("No refresh token found"))
		return
	case errors.Is(err, credential.ErrIntegrity):
		slog.Error("stored refresh token failed integrity check", slog.String("user_id", identity.ID))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewIntegrityError())
		return
	default:
		slog.Warn("token refresh failed",
			slog.String("user_id", identity.ID),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError("Token refresh failed"))
		return
	}

	h.cookies.Set(w, middleware.AccessTokenCookieName, accessToken, h.config.AccessTokenTTL)
	middleware.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

// User は現在のセッションのユーザー情報を返す。
// GET /auth/user
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError("No session"))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, userResponse{User: identity})
}

// Logout は両方のCookieを削除する。セッショントークンはステートレスのため保存側の処理はない。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w, middleware.SessionCookieName)
	h.cookies.Clear(w, middleware.AccessTokenCookieName)
	middleware.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}
