package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/bullseye/internal/auth"
	"github.com/utafrali/bullseye/internal/config"
	"github.com/utafrali/bullseye/internal/event"
	"github.com/utafrali/bullseye/internal/federation"
	handler "github.com/utafrali/bullseye/internal/handler/http"
	"github.com/utafrali/bullseye/internal/mailer"
	"github.com/utafrali/bullseye/internal/notification"
	"github.com/utafrali/bullseye/internal/repository"
	"github.com/utafrali/bullseye/internal/repository/cachestore"
	"github.com/utafrali/bullseye/internal/repository/memory"
	"github.com/utafrali/bullseye/internal/repository/postgres"
	"github.com/utafrali/bullseye/internal/service"
	"github.com/utafrali/bullseye/migrations"
	"github.com/utafrali/bullseye/pkg/cache"
	"github.com/utafrali/bullseye/pkg/database"
	"github.com/utafrali/bullseye/pkg/health"
	"github.com/utafrali/bullseye/pkg/httpclient"
	pkgkafka "github.com/utafrali/bullseye/pkg/kafka"
	"github.com/utafrali/bullseye/pkg/middleware"
	"github.com/utafrali/bullseye/pkg/tracing"
)

// Components selects what an App runs.
type Components struct {
	// HTTP serves the REST API.
	HTTP bool
	// Worker consumes queued emails and delivers them.
	Worker bool
}

// App wires together all dependencies and runs the service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	cache          cache.Cache
	producer       *pkgkafka.Producer
	dlqWriter      *kafka.Writer
	consumer       *pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing the dependencies
// the selected components need.
func NewApp(cfg *config.Config, logger *slog.Logger, comps Components) (a *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		Insecure:       true,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a.cache, err = cache.New(ctx, cache.Config{
		Driver:   cfg.CacheDriver,
		Addr:     cfg.RedisAddr,
		URL:      cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.CachePrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to cache: %w", err)
	}
	logger.Info("cache initialized", slog.String("driver", cfg.CacheDriver))

	queued := cfg.EmailDispatchMode == "queue"
	if queued && (comps.HTTP || comps.Worker) {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	sender := newSender(cfg, logger)
	renderer := notification.NewRenderer(cfg.AppName, cfg.OTPTTL)

	if comps.Worker || (comps.HTTP && queued && cfg.RunWorkerInServe) {
		if !queued {
			return nil, errors.New("the email worker requires EMAIL_DISPATCH_MODE=queue")
		}
		a.dlqWriter = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.KafkaBrokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
		a.consumer = notification.NewWorker(sender, logger).NewConsumer(notification.ConsumerOptions{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     cfg.KafkaConsumerGroup,
			MaxRetries:  3,
			RetryWait:   time.Second,
			Idempotency: pkgkafka.NewCacheIdempotencyStore(a.cache, "email_events:", 24*time.Hour),
			DeadLetter:  pkgkafka.NewDLQProducer(a.dlqWriter, logger),
		})
		logger.Info("email worker initialized", slog.String("group", cfg.KafkaConsumerGroup))
	}

	if !comps.HTTP {
		return a, nil
	}

	users, err := a.openUserStore(ctx)
	if err != nil {
		return nil, err
	}

	var dispatcher service.NotificationDispatcher
	if queued {
		dispatcher = notification.NewQueueDispatcher(renderer, event.NewProducer(a.producer, logger))
	} else {
		dispatcher = notification.NewDirectDispatcher(renderer, sender, logger)
	}

	var identity service.IdentityVerifier
	if len(cfg.GoogleClientIDs) > 0 {
		httpCfg := httpclient.DefaultConfig()
		httpCfg.Timeout = cfg.GoogleTimeout
		verifier, err := federation.NewGoogleVerifier(ctx, federation.GoogleConfig{
			ClientIDs:  cfg.GoogleClientIDs,
			HTTPClient: httpclient.New(httpCfg, httpclient.DefaultCircuitBreakerConfig("google-oauth2"), logger),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init google verifier: %w", err)
		}
		identity = verifier
	} else {
		logger.Warn("GOOGLE_CLIENT_ID not set, google sign-in disabled")
	}

	// Build the dependency graph.
	jwtManager := auth.NewJWTManager(auth.Config{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessExpiry:  cfg.JWTAccessExpiry,
		RefreshExpiry: cfg.JWTRefreshExpiry,
		Issuer:        cfg.JWTIssuer,
	})
	authService := service.NewAuthService(service.Deps{
		Users:     users,
		Cache:     cachestore.NewUserCache(a.cache, cfg.UserCacheTTL, cfg.AuthUserCacheTTL),
		OTPs:      cachestore.NewOTPStore(a.cache),
		Blacklist: cachestore.NewBlacklist(a.cache),
		Tickets:   cachestore.NewResetTickets(a.cache),
		Tokens:    jwtManager,
		Identity:  identity,
		Notifier:  dispatcher,
	}, service.Options{
		OTPTTL:             cfg.OTPTTL,
		MaxOTPAttempts:     cfg.OTPMaxAttempts,
		RequireResetTicket: cfg.RequireResetTicket,
	}, logger)
	quotaService := service.NewQuotaService(cachestore.NewQuotaCounter(a.cache), service.QuotaLimits{
		Anonymous:  cfg.ChatQuotaAnonymous,
		Guest:      cfg.ChatQuotaGuest,
		Registered: cfg.ChatQuotaRegistered,
	}, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	if a.pool != nil {
		healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
			return a.pool.Ping(ctx)
		})
	}
	healthHandler.RegisterCritical("cache", a.cache.Ping)
	if a.producer != nil {
		healthHandler.Register("kafka", a.producer.Ping)
	}

	metrics, err := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer, cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	router := handler.NewRouter(authService, quotaService, healthHandler, metrics, logger, handler.RouterConfig{
		ServiceName: cfg.ServiceName,
		APIPrefix:   cfg.APIPrefix(),
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowCredentials: true,
		},
		Cookies: handler.CookieConfig{
			Domain:        cfg.CookieDomain,
			Secure:        cfg.CookieSecure,
			SameSite:      handler.ParseSameSite(cfg.CookieSameSite),
			AccessMaxAge:  cfg.JWTAccessExpiry,
			RefreshMaxAge: cfg.JWTRefreshExpiry,
		},
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		TrustedProxies: cfg.TrustedProxyCIDRs,
		AuthRateLimit: middleware.RateLimitConfig{
			PerMinute: cfg.AuthRateLimitPerMinute,
			Burst:     cfg.AuthRateLimitBurst,
		},
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// openUserStore connects the credential store selected by DB_DRIVER.
func (a *App) openUserStore(ctx context.Context) (repository.UserRepository, error) {
	if a.cfg.DBDriver == "memory" {
		a.logger.Warn("using in-memory user store, data is lost on restart")
		return memory.NewUserRepository(a.cfg.BcryptCost), nil
	}

	pool, err := openPool(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.pool = pool

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, a.cfg.ServiceName); err != nil {
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}
	if a.cfg.RunMigrationsOnStart {
		if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations completed")
	}
	if a.cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(a.cfg.SlowQueryThreshold, a.logger)
	}
	return postgres.NewUserRepository(pool, a.cfg.BcryptCost), nil
}

func openPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := database.NewPostgresPoolWithLogger(ctx, &database.PostgresConfig{
		URL:             cfg.DatabaseURL,
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	return pool, nil
}

// newSender builds the mail transport, wrapped with fault injection when
// FAULT_INJECTION_RATE is positive.
func newSender(cfg *config.Config, logger *slog.Logger) mailer.Sender {
	var sender mailer.Sender
	if cfg.MailDriver == "smtp" {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			TLSMode:  cfg.SMTPTLSMode,
		}, logger)
	} else {
		sender = mailer.NewLogSender(logger)
	}
	if cfg.FaultInjectionRate > 0 {
		logger.Warn("email fault injection enabled", slog.Float64("rate", cfg.FaultInjectionRate))
		sender = mailer.WithFaultInjection(sender, cfg.FaultInjectionRate)
	}
	return sender
}

// Run starts the selected components and blocks until the context is
// canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if srv := a.httpServer; srv != nil {
		g.Go(func() error {
			a.logger.Info("starting HTTP server", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	if consumer := a.consumer; consumer != nil {
		g.Go(func() error {
			a.logger.Info("starting email worker", slog.String("topic", event.TopicEmailRequested))
			if err := consumer.Start(gctx); err != nil {
				return fmt.Errorf("email consumer: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka consumer and dead-letter writer
// 4. Kafka producer
// 5. Cache
// 6. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests.
	if a.httpServer != nil {
		httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer httpCancel()
		if err := a.httpServer.Shutdown(httpCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases 3-6 of Shutdown. Safe to call on a partially
// built App.
func (a *App) closeResources() []error {
	var errs []error
	closeOne := func(name string, fn func() error) {
		if err := fn(); err != nil {
			a.logger.Error(name+" close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.consumer != nil {
		closeOne("kafka consumer", a.consumer.Close)
		a.consumer = nil
	}
	if a.dlqWriter != nil {
		closeOne("kafka dead-letter writer", a.dlqWriter.Close)
		a.dlqWriter = nil
	}
	if a.producer != nil {
		closeOne("kafka producer", a.producer.Close)
		a.producer = nil
	}
	if a.cache != nil {
		closeOne("cache", a.cache.Close)
		a.cache = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errs
}
