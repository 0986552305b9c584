package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/domain"
	apperrors "github.com/spec-kit/auth-service/pkg/util"
)

// Require authenticates the bearer token and demands requiredRole in one step.
func (m *AuthMiddleware) Require(requiredRole string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return m.authorize(c, requiredRole)
	}
}

// RequireRole checks claims already placed by Handle. Use it on routes
// nested under an authenticated group.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if role != "" && !claims.HasRole(role) {
			return domain.NewError(domain.CodeInsufficientRole, "role "+role+" required", nil)
		}
		return c.Next()
	}
}

// AdminOnly is shorthand for RequireRole(domain.RoleAdmin).
func AdminOnly() fiber.Handler {
	return RequireRole(domain.RoleAdmin)
}
