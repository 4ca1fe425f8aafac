// Package session は署名付きセッショントークンの発行と検証を提供する。
// セッションはサーバー側に保存せず、HS256で署名したJWTとしてCookieで運ぶ。
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/essaybinder/internal/model"
)

// ErrInvalid は署名不正・期限切れ・形式不正などによりトークンを信頼できない場合のエラー。
var ErrInvalid = errors.New("session: invalid token")

// Claims はセッショントークンのペイロード。
type Claims struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// Codec はセッショントークンの署名と検証を行う。
type Codec struct {
	secret []byte
	nowFn  func() time.Time
}

// NewCodec はCodecを生成する。
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret), nowFn: time.Now}
}

// Issue は識別情報と有効期限を含むトークンを発行する。
func (c *Codec) Issue(identity model.Identity, ttl time.Duration) (string, error) {
	now := c.nowFn()
	claims := Claims{
		UserID:  identity.ID,
		Email:   identity.Email,
		Name:    identity.Name,
		Picture: identity.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// Verify はトークンの署名と有効期限を検証し、識別情報を返す。
// 検証に失敗した場合は理由によらずErrInvalidを返す。
func (c *Codec) Verify(token string) (model.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowFn),
	)
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return model.Identity{}, ErrInvalid
	}

	return model.Identity{
		ID:      claims.UserID,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}
