package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

const strongAccess = "0123456789abcdef0123456789abcdef-access"
const strongRefresh = "0123456789abcdef0123456789abcdef-refresh"

func TestLoad_Defaults(t *testing.T) {
	setEnvs(t, map[string]string{"APP_ENV": "development"})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessExpiry)
	assert.Equal(t, 168*time.Hour, cfg.JWTRefreshExpiry)
	assert.Equal(t, 10*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 5*time.Minute, cfg.AuthUserCacheTTL)
	assert.Equal(t, time.Hour, cfg.UserCacheTTL)
	assert.Equal(t, int64(5), cfg.ChatQuotaAnonymous)
	assert.Equal(t, int64(20), cfg.ChatQuotaGuest)
	assert.Equal(t, int64(100), cfg.ChatQuotaRegistered)
	assert.True(t, cfg.RequireResetTicket)
	assert.Equal(t, 5, cfg.OTPMaxAttempts)
	assert.Equal(t, 30, cfg.AuthRateLimitPerMinute)
	assert.Equal(t, 10, cfg.AuthRateLimitBurst)
	assert.Empty(t, cfg.TrustedProxyCIDRs)
	assert.Equal(t, "/api/v1", cfg.APIPrefix())
}

func TestLoad_ParsesListsAndDurations(t *testing.T) {
	setEnvs(t, map[string]string{
		"APP_ENV":             "development",
		"GOOGLE_CLIENT_ID":    "web.apps.googleusercontent.com,ios.apps.googleusercontent.com",
		"KAFKA_BROKERS":       "k1:9092,k2:9092",
		"OTP_TTL":             "90s",
		"TRUSTED_PROXY_CIDRS": "10.0.0.0/8,172.16.0.0/12",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"web.apps.googleusercontent.com", "ios.apps.googleusercontent.com"}, cfg.GoogleClientIDs)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 90*time.Second, cfg.OTPTTL)
	assert.Equal(t, []string{"10.0.0.0/8", "172.16.0.0/12"}, cfg.TrustedProxyCIDRs)
}

func TestLoad_Production_RejectsDefaultSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"APP_ENV":            "production",
		"JWT_REFRESH_SECRET": strongRefresh,
	})

	cfg, err := Load()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_ACCESS_SECRET must be explicitly set")
}

func TestLoad_Production_RejectsShortSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"APP_ENV":            "production",
		"JWT_ACCESS_SECRET":  "short",
		"JWT_REFRESH_SECRET": strongRefresh,
	})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestLoad_Production_RejectsSharedSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"APP_ENV":            "production",
		"JWT_ACCESS_SECRET":  strongAccess,
		"JWT_REFRESH_SECRET": strongAccess,
	})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestLoad_Production_AcceptsStrongSecrets(t *testing.T) {
	setEnvs(t, map[string]string{
		"APP_ENV":            "production",
		"JWT_ACCESS_SECRET":  strongAccess,
		"JWT_REFRESH_SECRET": strongRefresh,
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment:       "development",
			HTTPPort:          8080,
			DBDriver:          "postgres",
			EmailDispatchMode: "queue",
			MailDriver:        "log",
			JWTAccessExpiry:   time.Minute,
			JWTRefreshExpiry:  time.Hour,
			OTPTTL:            time.Minute,
			OTPMaxAttempts:    5,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"port", func(c *Config) { c.HTTPPort = 0 }, "invalid HTTP port"},
		{"db driver", func(c *Config) { c.DBDriver = "mysql" }, "DB_DRIVER"},
		{"dispatch mode", func(c *Config) { c.EmailDispatchMode = "carrier-pigeon" }, "EMAIL_DISPATCH_MODE"},
		{"mail driver", func(c *Config) { c.MailDriver = "fax" }, "MAIL_DRIVER"},
		{"fault rate", func(c *Config) { c.FaultInjectionRate = 1.5 }, "FAULT_INJECTION_RATE"},
		{"expiry order", func(c *Config) { c.JWTAccessExpiry = 2 * time.Hour }, "must be shorter"},
		{"otp ttl", func(c *Config) { c.OTPTTL = 0 }, "OTP_TTL"},
		{"otp attempts", func(c *Config) { c.OTPMaxAttempts = 0 }, "OTP_MAX_ATTEMPTS"},
		{"rate limit", func(c *Config) { c.AuthRateLimitPerMinute = -1 }, "AUTH_RATE_LIMIT_PER_MINUTE"},
		{"memory outside dev", func(c *Config) {
			c.Environment = "staging"
			c.DBDriver = "memory"
			c.JWTAccessSecret = strongAccess
			c.JWTRefreshSecret = strongRefresh
		}, "only allowed in development"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAPIPrefix(t *testing.T) {
	tests := []struct{ base, version, want string }{
		{"/api", "v1", "/api/v1"},
		{"api/", "/v2/", "/api/v2"},
		{"", "v1", "/v1"},
		{"/", "v1", "/v1"},
	}
	for _, tt := range tests {
		c := &Config{APIBasePath: tt.base, APIVersion: tt.version}
		assert.Equal(t, tt.want, c.APIPrefix())
	}
}
