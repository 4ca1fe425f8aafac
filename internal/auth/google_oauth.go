package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"

	"github.com/hitoshi/essaybinder/internal/model"
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string

	// テスト用にオーバーライド可能なURLとHTTPクライアント
	TokenURL   string
	HTTPClient *http.Client
}

// GoogleOAuthProvider はGoogleのトークンエンドポイントとの交換を行う。
type GoogleOAuthProvider struct {
	config     oauth2.Config
	httpClient *http.Client
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(cfg GoogleOAuthConfig) *GoogleOAuthProvider {
	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint = oauth2.Endpoint{TokenURL: cfg.TokenURL, AuthStyle: oauth2.AuthStyleInParams}
	}
	return &GoogleOAuthProvider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes: []string{
				"openid", "email", "profile",
				"https://www.googleapis.com/auth/documents.readonly",
				"https://www.googleapis.com/auth/drive.readonly",
			},
		},
		httpClient: cfg.HTTPClient,
	}
}

func (p *GoogleOAuthProvider) clientContext(ctx context.Context) context.Context {
	if p.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	return ctx
}

// ExchangeCode はPKCEのcode_verifierを添えて認可コードをトークンに交換する。
// redirect_uriは認可リクエスト時と一致させる必要があるため、リクエストごとに指定する。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*TokenSet, error) {
	cfg := p.config
	cfg.RedirectURL = redirectURI

	tok, err := cfg.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("token endpoint rejected code: %w", err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	return &TokenSet{
		AccessToken:  tok.AccessToken,
		IDToken:      idToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

// Refresh はリフレッシュトークンで新しいアクセストークンを取得する。
// トークンエンドポイントが拒否した場合はErrRefreshRejectedを返す。
func (p *GoogleOAuthProvider) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	ts := p.config.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, fmt.Errorf("%w: %s", ErrRefreshRejected, rerr.ErrorCode)
		}
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return &TokenSet{AccessToken: tok.AccessToken, Expiry: tok.Expiry}, nil
}

// GoogleIDTokenVerifier はGoogleの公開鍵でIDトークンの署名とaudienceを検証する。
type GoogleIDTokenVerifier struct {
	clientID string
	validate func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

// NewGoogleIDTokenVerifier はGoogleIDTokenVerifierを生成する。
func NewGoogleIDTokenVerifier(clientID string) *GoogleIDTokenVerifier {
	return &GoogleIDTokenVerifier{clientID: clientID, validate: idtoken.Validate}
}

// Verify はIDトークンを検証し、ユーザー識別情報を取り出す。
func (v *GoogleIDTokenVerifier) Verify(ctx context.Context, rawIDToken string) (*model.Identity, error) {
	payload, err := v.validate(ctx, rawIDToken, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("id token validation failed: %w", err)
	}
	if payload.Subject == "" {
		return nil, errors.New("id token has no subject")
	}

	claim := func(name string) string {
		s, _ := payload.Claims[name].(string)
		return s
	}
	return &model.Identity{
		ID:      payload.Subject,
		Email:   claim("email"),
		Name:    claim("name"),
		Picture: claim("picture"),
	}, nil
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
var _ IDTokenVerifier = (*GoogleIDTokenVerifier)(nil)
