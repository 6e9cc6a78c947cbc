package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/pkg/middleware"
)

const refreshTokenCookie = "refreshToken"

// CookieConfig controls the session cookies set next to JSON token responses.
type CookieConfig struct {
	Domain        string
	Secure        bool
	SameSite      http.SameSite
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
}

// ParseSameSite maps "strict", "lax" and "none" onto http.SameSite; anything
// else yields Lax.
func ParseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (c CookieConfig) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure || c.SameSite == http.SameSiteNoneMode,
		SameSite: c.SameSite,
	}
}

func (c CookieConfig) setTokens(w http.ResponseWriter, tokens *domain.TokenPair) {
	if tokens == nil {
		return
	}
	http.SetCookie(w, c.cookie(middleware.AccessTokenCookie, tokens.AccessToken, c.AccessMaxAge))
	http.SetCookie(w, c.cookie(refreshTokenCookie, tokens.RefreshToken, c.RefreshMaxAge))
}

func (c CookieConfig) clearTokens(w http.ResponseWriter) {
	for _, name := range []string{middleware.AccessTokenCookie, refreshTokenCookie} {
		ck := c.cookie(name, "", 0)
		ck.MaxAge = -1
		http.SetCookie(w, ck)
	}
}
