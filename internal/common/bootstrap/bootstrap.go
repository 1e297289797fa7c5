// Package bootstrap assembles the server process: configuration, database,
// repositories, services and the HTTP handler tree.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authcleanup "github.com/AlibekovAA/safecheck/internal/auth/cleanup"
	authhttp "github.com/AlibekovAA/safecheck/internal/auth/http"
	authrepo "github.com/AlibekovAA/safecheck/internal/auth/repository"
	authservice "github.com/AlibekovAA/safecheck/internal/auth/service"
	"github.com/AlibekovAA/safecheck/internal/changefeed"
	checkinhttp "github.com/AlibekovAA/safecheck/internal/checkin/http"
	checkinservice "github.com/AlibekovAA/safecheck/internal/checkin/service"
	"github.com/AlibekovAA/safecheck/internal/common/config"
	"github.com/AlibekovAA/safecheck/internal/common/constants"
	commoncrypto "github.com/AlibekovAA/safecheck/internal/common/crypto"
	"github.com/AlibekovAA/safecheck/internal/common/db"
	commonhttp "github.com/AlibekovAA/safecheck/internal/common/http"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	"github.com/AlibekovAA/safecheck/internal/migrations"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
	userrepo "github.com/AlibekovAA/safecheck/internal/user/repository"
)

const (
	ServiceName = "safecheck"

	demoUsername    = "elderly1"
	demoDisplayName = "Grandma Lin"
)

type App struct {
	Config           config.ServerConfig
	Log              *logger.Logger
	Pool             *pgxpool.Pool
	UserRepo         *userrepo.PgRepository
	RefreshTokenRepo *authrepo.PgRefreshTokenRepository
	Broker           *changefeed.Broker
	AuthService      *authservice.AuthService
	CheckInService   *checkinservice.CheckInService
}

// NewServerApp loads configuration from the environment, connects the pool
// and applies migrations when enabled.
func NewServerApp(ctx context.Context) (*App, error) {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogDir, ServiceName, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	pool, err := db.NewPool(ctx, log, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, log, cfg.DatabaseURL, migrations.Postgres, migrations.PostgresDir); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return New(cfg, log, pool), nil
}

// New wires repositories and services on top of an open pool.
func New(cfg config.ServerConfig, log *logger.Logger, pool *pgxpool.Pool) *App {
	userRepo := userrepo.NewPgRepository(pool, log)
	refreshTokenRepo := authrepo.NewPgRefreshTokenRepository(pool)
	broker := changefeed.NewBroker()

	authService := authservice.NewAuthService(
		authservice.AuthServiceDeps{
			Repo:             userRepo,
			RefreshTokenRepo: refreshTokenRepo,
			Hasher:           &commoncrypto.BcryptHasher{},
			IDGenerator:      commoncrypto.NewUUIDGenerator(),
			Log:              log,
		},
		authservice.AuthServiceConfig{
			JWTSecret:               cfg.JWTSecret,
			AccessTokenTTL:          cfg.AccessTokenTTL,
			RefreshTokenTTL:         cfg.RefreshTokenTTL,
			MaxRefreshTokens:        cfg.MaxRefreshTokensPerUser,
			DefaultThreshold:        cfg.DefaultTimeoutThreshold,
			CircuitBreakerThreshold: int32(cfg.CircuitBreakerThreshold),
			CircuitBreakerTimeout:   cfg.CircuitBreakerTimeout,
			CircuitBreakerReset:     cfg.CircuitBreakerReset,
		},
	)

	checkInService := checkinservice.NewCheckInService(
		checkinservice.CheckInServiceDeps{
			Repo:      userRepo,
			Publisher: broker,
			Log:       log,
		},
		checkinservice.CheckInServiceConfig{
			MaxTimeoutThreshold:     cfg.MaxTimeoutThreshold,
			CircuitBreakerThreshold: int32(cfg.CircuitBreakerThreshold),
			CircuitBreakerTimeout:   cfg.CircuitBreakerTimeout,
			CircuitBreakerReset:     cfg.CircuitBreakerReset,
		},
	)

	return &App{
		Config:           cfg,
		Log:              log,
		Pool:             pool,
		UserRepo:         userRepo,
		RefreshTokenRepo: refreshTokenRepo,
		Broker:           broker,
		AuthService:      authService,
		CheckInService:   checkInService,
	}
}

// StartBackground launches the change-feed listener and the refresh token
// sweeper. Both stop when ctx is cancelled.
func (a *App) StartBackground(ctx context.Context) {
	listener := changefeed.NewPgListener(a.Pool, a.Broker, a.UserRepo, a.Log)
	go listener.Run(ctx)
	go authcleanup.StartRefreshTokenCleanup(ctx, a.RefreshTokenRepo, constants.RefreshTokenCleanupInterval, a.Log)
}

// Handler returns the full middleware-wrapped handler tree.
func (a *App) Handler() http.Handler {
	authHandler := authhttp.NewHandler(a.AuthService, a.Config, a.Log)
	checkInHandler := checkinhttp.NewHandler(a.CheckInService, a.Broker, a.Config, a.Log)

	mux := http.NewServeMux()
	mux.Handle("/api/register", authHandler)
	mux.Handle("/api/login", authHandler)
	mux.Handle("/api/refresh", authHandler)
	mux.Handle("/api/logout", authHandler)
	mux.Handle("/api/", checkInHandler)
	mux.Handle("/ws/", checkInHandler)
	mux.Handle("/health", commonhttp.HealthHandler(a.Log, a.Pool))
	mux.Handle("/metrics", promhttp.Handler())

	rateLimiter := commonhttp.NewStrictRateLimiter(a.Config.TrustProxyHeaders)
	return rateLimiter.Middleware(commonhttp.BuildBaseHandler(ServiceName, a.Log, mux))
}

// SeedDemoUser registers the demo account unless it already exists. The
// refresh token issued by registration is revoked straight away.
func (a *App) SeedDemoUser(ctx context.Context) error {
	result, err := a.AuthService.Register(ctx, authservice.RegisterInput{
		Username:    demoUsername,
		Password:    a.Config.DemoPassword,
		DisplayName: demoDisplayName,
		Contacts:    userdomain.Contacts{},
	})
	if errors.Is(err, authservice.ErrUsernameTaken) {
		a.Log.Infof("demo user %s already exists", demoUsername)
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed demo user: %w", err)
	}

	if err := a.AuthService.RevokeRefreshToken(ctx, result.RefreshToken); err != nil {
		a.Log.Warnf("seed demo user: revoke bootstrap refresh token: %v", err)
	}
	a.Log.Infof("demo user %s created", demoUsername)
	return nil
}

func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Pool = nil
	}
	if a.Log != nil {
		_ = a.Log.Sync()
	}
}
