// Package auth はOAuth認可コード交換（PKCE）とアクセストークン更新を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/essaybinder/internal/credential"
	"github.com/hitoshi/essaybinder/internal/model"
)

var (
	// ErrExchangeFailed は認可コード交換のいずれかの段階が失敗した場合のエラー。
	ErrExchangeFailed = errors.New("auth: token exchange failed")
	// ErrNoRefreshToken はユーザーのリフレッシュトークンが保存されていない場合のエラー。
	ErrNoRefreshToken = errors.New("auth: no refresh token stored")
	// ErrRefreshRejected はトークンエンドポイントがリフレッシュトークンを拒否した場合のエラー。
	ErrRefreshRejected = errors.New("auth: refresh token rejected")
)

// TokenSet はトークンエンドポイントの応答。
type TokenSet struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	Expiry       time.Time
}

// OAuthProvider はOAuthトークンエンドポイントのインターフェース。
type OAuthProvider interface {
	// ExchangeCode は認可コードとPKCE verifierをトークンに交換する。
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*TokenSet, error)
	// Refresh はリフレッシュトークンで新しいアクセストークンを取得する。
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
}

// IDTokenVerifier はIDトークンの署名とaudienceを検証するインターフェース。
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*model.Identity, error)
}

// CredentialStore はリフレッシュトークンの暗号化保存のインターフェース。
// credential.Storeの部分集合として定義する。
type CredentialStore interface {
	SaveRefreshToken(ctx context.Context, userID, refreshToken string) error
	LoadRefreshToken(ctx context.Context, userID string) (string, error)
}

// SessionIssuer はセッショントークンの発行インターフェース。
type SessionIssuer interface {
	Issue(identity model.Identity, ttl time.Duration) (string, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionTTL time.Duration
}

// LoginResult はログイン成功時に発行されるトークン一式。
type LoginResult struct {
	Identity     model.Identity
	SessionToken string
	AccessToken  string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	verifier    IDTokenVerifier
	credentials CredentialStore
	sessions    SessionIssuer
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	verifier IDTokenVerifier,
	credentials CredentialStore,
	sessions SessionIssuer,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		verifier:    verifier,
		credentials: credentials,
		sessions:    sessions,
		config:      config,
	}
}

// ExchangeCode は認可コードを交換し、IDトークンを検証してセッションを発行する。
// リフレッシュトークンが発行された場合は暗号化して保存する。
// いずれかの段階で失敗した場合はErrExchangeFailedを返し、部分的な結果は返さない。
func (s *Service) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*LoginResult, error) {
	// 1. 認可コードをトークンに交換
	tokens, err := s.oauth.ExchangeCode(ctx, code, codeVerifier, redirectURI)
	if err != nil {
		return nil, s.exchangeFailed("exchange code", err)
	}
	if tokens.AccessToken == "" || tokens.IDToken == "" {
		return nil, s.exchangeFailed("exchange code", errors.New("access_token or id_token missing"))
	}

	// 2. IDトークンを検証
	identity, err := s.verifier.Verify(ctx, tokens.IDToken)
	if err != nil {
		return nil, s.exchangeFailed("verify id token", err)
	}

	// 3. リフレッシュトークンは初回同意時のみ発行される
	if tokens.RefreshToken != "" {
		if err := s.credentials.SaveRefreshToken(ctx, identity.ID, tokens.RefreshToken); err != nil {
			return nil, s.exchangeFailed("store refresh token", err)
		}
	}

	// 4. セッションを発行
	sessionToken, err := s.sessions.Issue(*identity, s.config.SessionTTL)
	if err != nil {
		return nil, s.exchangeFailed("issue session", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", identity.ID),
		slog.Bool("refresh_token_issued", tokens.RefreshToken != ""),
	)

	return &LoginResult{
		Identity:     *identity,
		SessionToken: sessionToken,
		AccessToken:  tokens.AccessToken,
	}, nil
}

func (s *Service) exchangeFailed(step string, err error) error {
	slog.Warn("token exchange failed",
		slog.String("step", step),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%w: %s: %v", ErrExchangeFailed, step, err)
}

// RefreshAccessToken は保存済みのリフレッシュトークンで新しいアクセストークンを取得する。
// 未保存ならErrNoRefreshToken、拒否されればErrRefreshRejected、
// 復号できなければcredential.ErrIntegrityを返す。
func (s *Service) RefreshAccessToken(ctx context.Context, userID string) (string, error) {
	refreshToken, err := s.credentials.LoadRefreshToken(ctx, userID)
	if errors.Is(err, credential.ErrNotFound) {
		return "", ErrNoRefreshToken
	}
	if err != nil {
		return "", err
	}

	tokens, err := s.oauth.Refresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if tokens.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrRefreshRejected)
	}
	return tokens.AccessToken, nil
}
