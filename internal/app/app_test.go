package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/bullseye/internal/config"
	"github.com/utafrali/bullseye/internal/mailer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:         "development",
		ServiceName:         "bullseye-test",
		HTTPPort:            8080,
		APIBasePath:         "/api",
		APIVersion:          "v1",
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        5 * time.Second,
		ShutdownTimeout:     time.Second,
		DBDriver:            "memory",
		BcryptCost:          4,
		CacheDriver:         "memory",
		CachePrefix:         "test:",
		UserCacheTTL:        time.Hour,
		AuthUserCacheTTL:    5 * time.Minute,
		JWTAccessSecret:     "access-secret-for-tests-0123456789",
		JWTRefreshSecret:    "refresh-secret-for-tests-0123456789",
		JWTAccessExpiry:     15 * time.Minute,
		JWTRefreshExpiry:    24 * time.Hour,
		JWTIssuer:           "bullseye",
		OTPTTL:              10 * time.Minute,
		RequireResetTicket:  true,
		CookieSameSite:      "lax",
		EmailDispatchMode:   "direct",
		MailDriver:          "log",
		AppName:             "BullsEye",
		ChatQuotaAnonymous:  1,
		ChatQuotaGuest:      2,
		ChatQuotaRegistered: 3,
		CORSAllowedOrigins:  []string{"*"},
	}
}

func TestNewApp_MemoryStackServesRequests(t *testing.T) {
	a, err := NewApp(testConfig(), testLogger(), Components{HTTP: true})
	require.NoError(t, err)
	require.NotNil(t, a.httpServer)
	assert.Nil(t, a.pool)
	assert.Nil(t, a.producer)
	assert.Nil(t, a.consumer)

	rec := httptest.NewRecorder()
	a.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := bytes.NewBufferString(`{"username":"alice","email":"a@x.com","password":"Secret123!"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", body)
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	a.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	a.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")

	require.NoError(t, a.Shutdown())
	assert.Nil(t, a.cache)
}

func TestNewApp_WorkerNeedsQueue(t *testing.T) {
	_, err := NewApp(testConfig(), testLogger(), Components{Worker: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMAIL_DISPATCH_MODE=queue")
}

func TestNewSender(t *testing.T) {
	cfg := testConfig()
	assert.IsType(t, &mailer.LogSender{}, newSender(cfg, testLogger()))

	cfg.MailDriver = "smtp"
	assert.IsType(t, &mailer.SMTPSender{}, newSender(cfg, testLogger()))

	cfg.FaultInjectionRate = 0.5
	assert.IsType(t, &mailer.FaultInjector{}, newSender(cfg, testLogger()))
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPPort = 0
	a, err := NewApp(cfg, testLogger(), Components{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
