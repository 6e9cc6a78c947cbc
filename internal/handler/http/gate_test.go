package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/bullseye/internal/domain"
	apperrors "github.com/utafrali/bullseye/pkg/errors"
	"github.com/utafrali/bullseye/pkg/httputil"
	"github.com/utafrali/bullseye/pkg/middleware"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAuthenticator resolves tokens from a fixed table.
type stubAuthenticator map[string]*domain.AuthUser

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (*domain.AuthUser, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	u, ok := s[token]
	if !ok {
		return nil, apperrors.Unauthorized("invalid or expired token")
	}
	return u, nil
}

var (
	plainUser = &domain.AuthUser{ID: "u1", Role: domain.RoleUser, UserType: domain.UserTypeRegistered, IsActive: true}
	adminUser = &domain.AuthUser{ID: "a1", Role: domain.RoleAdmin, UserType: domain.UserTypeRegistered, IsActive: true}
)

func newStubGate() *Gate {
	return NewGate(stubAuthenticator{"user-token": plainUser, "admin-token": adminUser}, discardLogger())
}

// whoami echoes the attached user id, or "anonymous".
func whoami(w http.ResponseWriter, r *http.Request) {
	if u, ok := AuthUserFromContext(r.Context()); ok {
		_, _ = io.WriteString(w, u.ID)
		return
	}
	_, _ = io.WriteString(w, "anonymous")
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestGate_Authenticate(t *testing.T) {
	h := newStubGate().Authenticate(http.HandlerFunc(whoami))

	tests := []struct {
		name     string
		setup    func(r *http.Request)
		wantCode int
		wantBody string
	}{
		{"no token", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, ""},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer user-token") }, http.StatusOK, "u1"},
		{"cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: "admin-token"})
		}, http.StatusOK, "a1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
				return
			}
			resp := decodeEnvelope(t, rec)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestGate_OptionalAuth(t *testing.T) {
	h := newStubGate().OptionalAuth(http.HandlerFunc(whoami))

	for token, want := range map[string]string{"": "anonymous", "garbage": "anonymous", "user-token": "u1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, rec.Body.String(), "token %q", token)
	}
}

func TestGate_Authorize(t *testing.T) {
	g := newStubGate()
	adminOnly := g.Authorize(domain.RoleAdmin)(http.HandlerFunc(whoami))

	rec := httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	chain := g.Authenticate(adminOnly)
	for token, want := range map[string]int{"user-token": http.StatusForbidden, "admin-token": http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "token %q", token)
	}
}

func TestContentTypeJSON(t *testing.T) {
	h := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code, "bodyless POST passes")
}

func TestParseSameSite(t *testing.T) {
	assert.Equal(t, http.SameSiteStrictMode, ParseSameSite("Strict"))
	assert.Equal(t, http.SameSiteNoneMode, ParseSameSite("none"))
	assert.Equal(t, http.SameSiteLaxMode, ParseSameSite("lax"))
	assert.Equal(t, http.SameSiteLaxMode, ParseSameSite(""))
}
