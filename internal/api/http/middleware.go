package http

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/observability"
	apperrors "github.com/spec-kit/auth-service/pkg/util"
)

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
// The request logger wraps the error handler so it records the final status.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// errorHandlingMiddleware renders every error as {"error": {code, message, request_id}}.
func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err == nil {
				return
			}
			rendered := apperrors.ToDomainError(err)
			metrics.RecordError(c.Path(), c.Method(), rendered.Code)

			body := fiber.Map{
				"code":    rendered.Code,
				"message": rendered.Message,
			}
			if requestID := c.GetRespHeader(observability.RequestIDHeader); requestID != "" {
				body["request_id"] = requestID
			}
			if len(rendered.Details) > 0 {
				body["details"] = rendered.Details
			}

			switch {
			case rendered.HTTPStatus >= http.StatusInternalServerError:
				logger.Error("request failed", zap.String("code", rendered.Code), zap.Error(rendered))
			case rendered.HTTPStatus == http.StatusUnauthorized:
				c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="auth-service"`)
			}

			c.Status(rendered.HTTPStatus)
			_ = c.JSON(fiber.Map{"error": body})
			err = nil
		}()
		return c.Next()
	}
}
