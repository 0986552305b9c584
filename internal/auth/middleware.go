package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/domain"
	apperrors "github.com/spec-kit/auth-service/pkg/util"
)

const (
	claimsKey = "auth_claims"
	tokenKey  = "auth_token"
)

// Authorizer makes the access decision for a bearer token.
type Authorizer interface {
	Authorize(ctx context.Context, rawToken, requiredRole string) (*domain.ClaimSet, error)
}

// DecisionRecorder counts authorization outcomes.
type DecisionRecorder interface {
	RecordDecision(outcome string)
}

// DecisionAllow is recorded for granted requests; denials record their error code.
const DecisionAllow = "ALLOW"

// AuthMiddleware validates bearer tokens and stores the caller's claims.
type AuthMiddleware struct {
	authz    Authorizer
	recorder DecisionRecorder
}

// NewAuthMiddleware constructs middleware. recorder may be nil.
func NewAuthMiddleware(authz Authorizer, recorder DecisionRecorder) *AuthMiddleware {
	return &AuthMiddleware{authz: authz, recorder: recorder}
}

// Handle enforces authentication for protected routes without a role requirement.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	return m.authorize(c, "")
}

func (m *AuthMiddleware) authorize(c *fiber.Ctx, requiredRole string) error {
	raw, err := BearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		m.record("MISSING_TOKEN")
		return err
	}

	claims, err := m.authz.Authorize(c.UserContext(), raw, requiredRole)
	if err != nil {
		code := string(domain.CodeOf(err))
		if code == "" {
			code = "ERROR"
		}
		m.record(code)
		return err
	}
	m.record(DecisionAllow)

	c.Locals(claimsKey, claims)
	c.Locals(tokenKey, raw)
	return c.Next()
}

func (m *AuthMiddleware) record(outcome string) {
	if m.recorder != nil {
		m.recorder.RecordDecision(outcome)
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.NewUnauthorized("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// ClaimsFromContext retrieves the authenticated caller's claims.
func ClaimsFromContext(c *fiber.Ctx) (*domain.ClaimSet, bool) {
	claims, ok := c.Locals(claimsKey).(*domain.ClaimSet)
	return claims, ok && claims != nil
}

// TokenFromContext returns the raw bearer token accepted for this request.
func TokenFromContext(c *fiber.Ctx) (string, bool) {
	raw, ok := c.Locals(tokenKey).(string)
	return raw, ok && raw != ""
}
