// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/essaybinder/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに検証済みIdentityを格納するためのキー。
var identityContextKey = contextKey("identity")

// SessionVerifier はセッショントークンの検証インターフェース。
type SessionVerifier interface {
	Verify(token string) (model.Identity, error)
}

// NewSessionMiddleware はsession Cookieの署名付きトークンを検証し、
// 検証済みIdentityをリクエストコンテキストに注入するミドルウェアを返す。
// Cookieが無い場合は401 "No session"、検証に失敗した場合はCookieを削除して401 "Invalid session"を返す。
func NewSessionMiddleware(verifier SessionVerifier, cookies CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError("No session"))
				return
			}

			identity, err := verifier.Verify(cookie.Value)
			if err != nil {
				cookies.Clear(w, SessionCookieName)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError("Invalid session"))
				return
			}

			recordUserID(r.Context(), identity.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// IdentityFromContext はリクエストコンテキストから検証済みIdentityを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	if !ok || identity.ID == "" {
		return model.Identity{}, false
	}
	return identity, true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("user ID not found in context")
	}
	return identity.ID, nil
}

// ContextWithIdentity はコンテキストにIdentityを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// ContextWithUserID はユーザーIDのみを持つIdentityをコンテキストに注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithIdentity(ctx, model.Identity{ID: userID})
}
