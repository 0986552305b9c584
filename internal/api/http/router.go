package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health                *handlers.HealthHandler
	Auth                  *handlers.AuthHandler
	Users                 *handlers.UsersHandler
	AuthMiddleware        *auth.AuthMiddleware
	RateLimit             config.RateLimitConfig
	OpenAdminRegistration bool
	Logger                *zap.Logger
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.AuthMiddleware.Require(domain.RoleAdmin), cfg.Health.Metrics)

	loginLimit := RateLimit(cfg.RateLimit.LoginRequestsPerMinute, cfg.RateLimit.LoginBurst, logger)
	registerLimit := RateLimit(cfg.RateLimit.RegisterRequestsPerMinute, cfg.RateLimit.RegisterBurst, logger)
	authenticated := cfg.AuthMiddleware.Handle

	// Group middleware would match every /auth path, so protection is per route.
	authGroup := app.Group("/auth")
	authGroup.Post("/login", loginLimit, cfg.Auth.Login)
	authGroup.Post("/register", registerLimit, cfg.Auth.Register)
	if cfg.OpenAdminRegistration {
		authGroup.Post("/registerAdmin", registerLimit, cfg.Auth.RegisterAdmin)
	} else {
		authGroup.Post("/registerAdmin", cfg.AuthMiddleware.Require(domain.RoleAdmin), cfg.Auth.RegisterAdmin)
	}
	authGroup.Get("/getById", cfg.Auth.GetByID)
	authGroup.Post("/logout", authenticated, cfg.Auth.Logout)
	authGroup.Get("/me", authenticated, cfg.Auth.Me)
	authGroup.Post("/password/change", authenticated, loginLimit, cfg.Auth.ChangePassword)

	users := app.Group("/users", cfg.AuthMiddleware.Handle, auth.AdminOnly())
	users.Get("/getAll", cfg.Users.GetAll)
	users.Delete("/:id", cfg.Users.Delete)
}
