package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/domain"
)

// DomainError is the rendered form of any error leaving a handler.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewTooManyRequests(message string) error {
	return NewDomainError("RATE_LIMITED", message, http.StatusTooManyRequests, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewCredentialsError is the single response for every failed login, whether
// the username was unknown or the password wrong.
func NewCredentialsError() error {
	return NewDomainError(string(domain.CodeInvalidCredentials), "invalid credentials", http.StatusUnauthorized, nil)
}

var authStatus = map[domain.ErrorCode]int{
	domain.CodeUserNotFound:         http.StatusNotFound,
	domain.CodeInvalidCredentials:   http.StatusUnauthorized,
	domain.CodeUsernameTaken:        http.StatusConflict,
	domain.CodeEmailTaken:           http.StatusConflict,
	domain.CodeMalformed:            http.StatusUnauthorized,
	domain.CodeInvalidSignature:     http.StatusUnauthorized,
	domain.CodeExpired:              http.StatusUnauthorized,
	domain.CodeUnsupportedAlgorithm: http.StatusUnauthorized,
	domain.CodeRevoked:              http.StatusUnauthorized,
	domain.CodeInsufficientRole:     http.StatusForbidden,
	domain.CodeStoreUnavailable:     http.StatusServiceUnavailable,
	domain.CodeInvalidInput:         http.StatusBadRequest,
}

// StatusFor returns the HTTP status a tagged auth error is rendered with.
func StatusFor(code domain.ErrorCode) int {
	if status, ok := authStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ToDomainError converts any handler error for rendering. Causes wrapped by
// tagged auth errors stay server-side; only their code and message are exposed.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var authErr *domain.Error
	if errors.As(err, &authErr) {
		return &DomainError{
			Code:       string(authErr.Code),
			Message:    authErr.Message,
			HTTPStatus: StatusFor(authErr.Code),
			Err:        authErr,
		}
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return NewDomainError(codeForStatus(fiberErr.Code), fiberErr.Message, fiberErr.Code, nil)
	}
	return NewInternalError(err).(*DomainError)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	}
	if status >= http.StatusInternalServerError {
		return "INTERNAL_ERROR"
	}
	return "REQUEST_FAILED"
}
