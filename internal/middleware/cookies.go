package middleware

import (
	"net/http"
	"time"
)

// Cookie名
const (
	SessionCookieName     = "session"
	AccessTokenCookieName = "access_token"
)

// CookieConfig は認証Cookieの属性を保持する。
// HttpOnlyとSameSite=Strictは常に付与し、Secureのみ環境で切り替える。
type CookieConfig struct {
	Secure bool
}

func (c CookieConfig) base(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Set はTTL付きのCookieを設定する。
func (c CookieConfig) Set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	cookie := c.base(name)
	cookie.Value = value
	cookie.MaxAge = int(ttl.Seconds())
	cookie.Expires = time.Now().Add(ttl)
	http.SetCookie(w, cookie)
}

// Clear はCookieを削除する。
func (c CookieConfig) Clear(w http.ResponseWriter, name string) {
	cookie := c.base(name)
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}
