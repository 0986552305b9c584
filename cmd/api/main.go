package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/auth-service/internal/api/http"
	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/observability"
	"github.com/spec-kit/auth-service/internal/persistence"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/service"
	"github.com/spec-kit/auth-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userRepo, database, closeStore := openUserStore(ctx, cfg, logger)
	defer closeStore()

	var (
		sessionRepo repository.SessionRepository
		redisPinger handlers.Pinger
	)
	if cfg.Auth.RevocationEnabled {
		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		sessionRepo = repository.NewSessionRepository(redis.Client)
		redisPinger = redis
	} else {
		logger.Warn("token revocation disabled; issued tokens stay valid until expiry")
	}

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))

	authService, err := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:    userRepo,
		SessionRepo: sessionRepo,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("failed to init auth service", zap.Error(err))
	}

	if cfg.Auth.JWTSecret == config.DevJWTSecret {
		logger.Warn("signing tokens with the development default secret; set AUTH_JWT_SECRET before deploying")
	}
	if cfg.Auth.OpenAdminRegistration {
		logger.Warn("POST /auth/registerAdmin is open to anonymous callers; set AUTH_OPEN_ADMIN_REGISTRATION=false to require ROLE_ADMIN")
	}

	metrics := observability.NewMetrics()
	authMiddleware := auth.NewAuthMiddleware(authService, metrics)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:                handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, database, redisPinger, metrics),
		Auth:                  handlers.NewAuthHandler(authService),
		Users:                 handlers.NewUsersHandler(authService),
		AuthMiddleware:        authMiddleware,
		RateLimit:             cfg.RateLimit,
		OpenAdminRegistration: cfg.Auth.OpenAdminRegistration,
		Logger:                logger,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

// openUserStore connects the configured user backend and applies its migrations.
func openUserStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.UserRepository, handlers.Pinger, func()) {
	switch cfg.UserStore.Driver {
	case config.DriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		return repository.NewUserRepository(pg.PoolHandle()), pg, pg.Close
	default:
		db, err := persistence.NewSQLite(ctx, cfg.SQLite, logger)
		if err != nil {
			logger.Fatal("failed to open sqlite", zap.Error(err))
		}
		if cfg.SQLite.RunMigrations {
			if err := persistence.RunSQLiteMigrations(db.DB, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		return repository.NewSQLiteUserRepository(db.DB), db, db.Close
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
