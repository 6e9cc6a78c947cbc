package middleware

import (
	"net/http"
	"strings"
)

// AccessTokenCookie is the cookie an access token may be presented in when
// the Authorization header is absent.
const AccessTokenCookie = "accessToken"

// ExtractToken returns the bearer token from the Authorization header, falling
// back to the named cookie. It returns "" when neither carries a token.
func ExtractToken(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
