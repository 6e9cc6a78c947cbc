package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientIP_IgnoresHeadersWithoutTrustedProxy(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "203.0.113.9:5555", "203.0.113.9"},
		{"spoofed forwarded for", map[string]string{"X-Forwarded-For": "198.51.100.1"}, "10.0.0.2:1", "10.0.0.2"},
		{"spoofed real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.2:1", "10.0.0.2"},
		{"remote without port", nil, "203.0.113.9", "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestTrustProxies(t *testing.T) {
	var got string
	h := TrustProxies([]string{"10.0.0.0/8", "bogus", ""}, discardLogger())(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { got = ClientIP(r) }),
	)

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"untrusted peer spoofing forwarded for", "203.0.113.9:1", map[string]string{"X-Forwarded-For": "198.51.100.1"}, "203.0.113.9"},
		{"untrusted peer spoofing real ip", "203.0.113.9:1", map[string]string{"X-Real-IP": "198.51.100.1"}, "203.0.113.9"},
		{"trusted proxy", "10.0.0.2:1", map[string]string{"X-Forwarded-For": "198.51.100.1"}, "198.51.100.1"},
		{"rightmost untrusted hop wins", "10.0.0.2:1", map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.1, 10.0.0.3"}, "198.51.100.1"},
		{"only trusted hops", "10.0.0.2:1", map[string]string{"X-Forwarded-For": "10.0.0.5, 10.0.0.3"}, "10.0.0.5"},
		{"malformed hop stops the walk", "10.0.0.2:1", map[string]string{"X-Forwarded-For": "198.51.100.1, junk"}, "10.0.0.2"},
		{"trusted proxy real ip", "10.0.0.2:1", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
		{"trusted proxy without headers", "10.0.0.2:1", nil, "10.0.0.2"},
		{"mapped v4 peer", "[::ffff:10.0.0.2]:1", map[string]string{"X-Forwarded-For": "198.51.100.1"}, "198.51.100.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrustProxies_NoneConfigured(t *testing.T) {
	var got string
	h := TrustProxies(nil, discardLogger())(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { got = ClientIP(r) }),
	)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "127.0.0.1", got)
}

func TestIPAllowlist(t *testing.T) {
	mw := IPAllowlist([]string{"127.0.0.0/8", "not-a-cidr", "::1/128"}, discardLogger())
	h := mw(okHandler)

	tests := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:1234", http.StatusOK},
		{"[::1]:1234", http.StatusOK},
		{"192.168.1.1:1234", http.StatusForbidden},
		{"garbage", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestIPAllowlist_IgnoresForwardedFor(t *testing.T) {
	h := IPAllowlist([]string{"127.0.0.0/8"}, discardLogger())(okHandler)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:1234"
	req.Header.Set("X-Forwarded-For", "127.0.0.1")
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "access restricted by IP allowlist", body["message"])
}

func TestRegisterPprof(t *testing.T) {
	r := chi.NewRouter()
	RegisterPprof(r, []string{"127.0.0.0/8"}, discardLogger())

	allowed := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	allowed.RemoteAddr = "127.0.0.1:1"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, allowed)
	assert.Equal(t, http.StatusOK, rec.Code)

	denied := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	denied.RemoteAddr = "10.1.1.1:1"
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, denied)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
