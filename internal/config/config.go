package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/utafrali/bullseye/pkg/config"
)

const defaultSecret = "change-this-to-a-secure-secret"

// Config holds all configuration for the service.
type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"bullseye"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	APIBasePath     string        `env:"API_BASE_PATH" envDefault:"/api"`
	APIVersion      string        `env:"API_VERSION" envDefault:"v1"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Store: "postgres" or "memory" (local development only).
	DBDriver             string        `env:"DB_DRIVER" envDefault:"postgres"`
	DatabaseURL          string        `env:"DATABASE_URL"`
	PostgresHost         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser         string        `env:"POSTGRES_USER" envDefault:"bullseye"`
	PostgresPass         string        `env:"POSTGRES_PASSWORD" envDefault:"bullseye_secret"`
	PostgresDB           string        `env:"POSTGRES_DB" envDefault:"bullseye"`
	PostgresSSL          string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns           int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns           int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime    time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	DBMaxConnIdleTime    time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	SlowQueryThreshold   time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`
	RunMigrationsOnStart bool          `env:"DB_MIGRATE_ON_START" envDefault:"true"`
	BcryptCost           int           `env:"BCRYPT_COST" envDefault:"12"`

	// Cache
	CacheDriver      string        `env:"CACHE_DRIVER" envDefault:"redis"`
	RedisURL         string        `env:"REDIS_URL"`
	RedisAddr        string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	CachePrefix      string        `env:"CACHE_PREFIX" envDefault:"bullseye:"`
	UserCacheTTL     time.Duration `env:"USER_CACHE_TTL" envDefault:"1h"`
	AuthUserCacheTTL time.Duration `env:"AUTH_USER_CACHE_TTL" envDefault:"5m"`

	// JWT
	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"bullseye"`

	// OTP
	OTPTTL             time.Duration `env:"OTP_TTL" envDefault:"10m"`
	OTPMaxAttempts     int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	RequireResetTicket bool          `env:"REQUIRE_RESET_TICKET" envDefault:"true"`

	// Per-IP limit on the public /auth endpoints. 0 disables it.
	AuthRateLimitPerMinute int `env:"AUTH_RATE_LIMIT_PER_MINUTE" envDefault:"30"`
	AuthRateLimitBurst     int `env:"AUTH_RATE_LIMIT_BURST" envDefault:"10"`

	// Peers allowed to set X-Forwarded-For / X-Real-IP.
	TrustedProxyCIDRs []string `env:"TRUSTED_PROXY_CIDRS" envSeparator:","`

	// Cookies
	CookieDomain   string `env:"COOKIE_DOMAIN"`
	CookieSecure   bool   `env:"COOKIE_SECURE" envDefault:"false"`
	CookieSameSite string `env:"COOKIE_SAMESITE" envDefault:"lax"`

	// Google
	GoogleClientIDs []string      `env:"GOOGLE_CLIENT_ID" envSeparator:","`
	GoogleTimeout   time.Duration `env:"GOOGLE_TIMEOUT" envDefault:"5s"`

	// Email dispatch: "queue" publishes to Kafka, "direct" sends in-request.
	EmailDispatchMode  string   `env:"EMAIL_DISPATCH_MODE" envDefault:"queue"`
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"bullseye-mailer"`
	RunWorkerInServe   bool     `env:"EMAIL_WORKER_IN_PROCESS" envDefault:"false"`

	// Mail transport: "smtp" or "log".
	MailDriver         string  `env:"MAIL_DRIVER" envDefault:"log"`
	SMTPHost           string  `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort           int     `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser           string  `env:"SMTP_USER"`
	SMTPPassword       string  `env:"SMTP_PASSWORD"`
	SMTPFrom           string  `env:"SMTP_FROM" envDefault:"BullsEye <no-reply@bullseye.local>"`
	SMTPTLSMode        string  `env:"SMTP_TLS_MODE" envDefault:"starttls"`
	AppName            string  `env:"APP_NAME" envDefault:"BullsEye"`
	FaultInjectionRate float64 `env:"FAULT_INJECTION_RATE" envDefault:"0"`

	// Chat quota
	ChatQuotaAnonymous  int64 `env:"CHAT_QUOTA_ANONYMOUS" envDefault:"5"`
	ChatQuotaGuest      int64 `env:"CHAT_QUOTA_GUEST" envDefault:"20"`
	ChatQuotaRegistered int64 `env:"CHAT_QUOTA_REGISTERED" envDefault:"100"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Observability
	OTELEnabled       bool     `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint      string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate    float64  `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`
}

// Load reads configuration from the environment (and .env when present)
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and, outside development, secret strength.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.DBDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid DB_DRIVER %q", c.DBDriver)
	}
	switch c.EmailDispatchMode {
	case "queue", "direct":
	default:
		return fmt.Errorf("invalid EMAIL_DISPATCH_MODE %q", c.EmailDispatchMode)
	}
	switch c.MailDriver {
	case "smtp", "log":
	default:
		return fmt.Errorf("invalid MAIL_DRIVER %q", c.MailDriver)
	}
	if c.FaultInjectionRate < 0 || c.FaultInjectionRate > 1 {
		return fmt.Errorf("FAULT_INJECTION_RATE must be within [0,1], got %v", c.FaultInjectionRate)
	}
	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= 0 {
		return fmt.Errorf("token expiries must be positive")
	}
	if c.JWTAccessExpiry >= c.JWTRefreshExpiry {
		return fmt.Errorf("JWT_ACCESS_TOKEN_EXPIRY (%s) must be shorter than JWT_REFRESH_TOKEN_EXPIRY (%s)", c.JWTAccessExpiry, c.JWTRefreshExpiry)
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	if c.OTPMaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1, got %d", c.OTPMaxAttempts)
	}
	if c.AuthRateLimitPerMinute < 0 || c.AuthRateLimitBurst < 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT_PER_MINUTE and AUTH_RATE_LIMIT_BURST must not be negative")
	}

	if c.IsDevelopment() {
		return nil
	}
	for name, secret := range map[string]string{
		"JWT_ACCESS_SECRET":  c.JWTAccessSecret,
		"JWT_REFRESH_SECRET": c.JWTRefreshSecret,
	} {
		if secret == defaultSecret {
			return fmt.Errorf("%s must be explicitly set via environment variable in %q mode", name, c.Environment)
		}
		if len(secret) < 32 {
			return fmt.Errorf("%s must be at least 32 characters long, got %d", name, len(secret))
		}
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ in %q mode", c.Environment)
	}
	if c.DBDriver == "memory" {
		return fmt.Errorf("DB_DRIVER=memory is only allowed in development")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// APIPrefix joins the base path and version, e.g. "/api/v1".
func (c *Config) APIPrefix() string {
	base := "/" + strings.Trim(c.APIBasePath, "/")
	if base == "/" {
		base = ""
	}
	return base + "/" + strings.Trim(c.APIVersion, "/")
}
