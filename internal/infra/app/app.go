package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/annamusic/anna-api/internal/core/port"
	"github.com/annamusic/anna-api/internal/infra/config"
	"github.com/annamusic/anna-api/internal/infra/database"
	kafkainfra "github.com/annamusic/anna-api/internal/infra/kafka"
	"github.com/annamusic/anna-api/internal/infra/logger"
	mailinfra "github.com/annamusic/anna-api/internal/infra/mail"
	redisinfra "github.com/annamusic/anna-api/internal/infra/redis"
	"github.com/annamusic/anna-api/internal/infra/security"
	postgresrepo "github.com/annamusic/anna-api/internal/repository/postgres"
	redisrepo "github.com/annamusic/anna-api/internal/repository/redis"
	"github.com/annamusic/anna-api/internal/transport/http/middleware"
	"github.com/annamusic/anna-api/internal/transport/http/routes"
	"github.com/annamusic/anna-api/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if err := security.ConfigureArgon2FromSettings(cfg.Argon2); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	sessionIssuer, err := security.NewSessionIssuer(cfg.Session)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init session issuer: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var mailer port.Mailer
	if cfg.SMTP.Host != "" {
		smtpMailer, err := mailinfra.NewSMTPMailer(cfg.SMTP, log)
		if err != nil {
			pool.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init mailer: %w", err)
		}
		mailer = smtpMailer
	} else {
		log.Info("smtp host not configured, using logging mailer")
		mailer = mailinfra.NewLoggingMailer(log)
	}

	passwordValidator := security.NewAccountPasswordValidator()

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = 15 * time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "anna:rate-limit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	auditService := usecase.NewAuditService(repos.AuditLogs, log)
	verificationService := usecase.NewVerificationService(repos.Users, mailer, cfg.OTP, log)
	authService := usecase.NewAuthService(cfg.Lockout, repos.Users, sessionIssuer, auditService, eventPublisher, verificationService, log)
	registrationService := usecase.NewRegistrationService(repos.Users, verificationService, passwordValidator, auditService, eventPublisher, log)
	passwordResetService := usecase.NewPasswordResetService(repos.Users, mailer, passwordValidator, sessionIssuer, auditService, eventPublisher, cfg.Reset, cfg.SMTP, log)
	profileService := usecase.NewProfileService(repos.Users, passwordValidator, auditService, eventPublisher, log)
	catalogService := usecase.NewCatalogService(repos.Songs, repos.Favorites)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Sessions:    sessionIssuer,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Postgres:    pool,
		Redis:       redisClient,
		Services: routes.ServiceSet{
			Auth:          authService,
			Registration:  registrationService,
			Verification:  verificationService,
			PasswordReset: passwordResetService,
			Profiles:      profileService,
			Catalog:       catalogService,
			Audit:         auditService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
