package domain

import (
	"errors"
	"fmt"
)

// ErrorCode tags every failure the auth core can report.
type ErrorCode string

const (
	CodeUserNotFound         ErrorCode = "USER_NOT_FOUND"
	CodeInvalidCredentials   ErrorCode = "INVALID_CREDENTIALS"
	CodeUsernameTaken        ErrorCode = "USERNAME_TAKEN"
	CodeEmailTaken           ErrorCode = "EMAIL_TAKEN"
	CodeMalformed            ErrorCode = "MALFORMED"
	CodeInvalidSignature     ErrorCode = "INVALID_SIGNATURE"
	CodeExpired              ErrorCode = "EXPIRED"
	CodeUnsupportedAlgorithm ErrorCode = "UNSUPPORTED_ALGORITHM"
	CodeRevoked              ErrorCode = "REVOKED"
	CodeInsufficientRole     ErrorCode = "INSUFFICIENT_ROLE"
	CodeStoreUnavailable     ErrorCode = "STORE_UNAVAILABLE"
	CodeInvalidInput         ErrorCode = "INVALID_INPUT"
)

// Error is a tagged auth failure. Two errors match under errors.Is when
// their codes are equal, so callers compare against the sentinels below.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError builds a tagged error wrapping an optional cause.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Sentinels for errors.Is comparisons.
var (
	ErrUserNotFound         = &Error{Code: CodeUserNotFound, Message: "user not found"}
	ErrInvalidCredentials   = &Error{Code: CodeInvalidCredentials, Message: "invalid credentials"}
	ErrUsernameTaken        = &Error{Code: CodeUsernameTaken, Message: "username already exists"}
	ErrEmailTaken           = &Error{Code: CodeEmailTaken, Message: "email already exists"}
	ErrMalformed            = &Error{Code: CodeMalformed, Message: "malformed token"}
	ErrInvalidSignature     = &Error{Code: CodeInvalidSignature, Message: "invalid token signature"}
	ErrExpired              = &Error{Code: CodeExpired, Message: "token expired"}
	ErrUnsupportedAlgorithm = &Error{Code: CodeUnsupportedAlgorithm, Message: "unsupported signing algorithm"}
	ErrRevoked              = &Error{Code: CodeRevoked, Message: "session revoked"}
	ErrInsufficientRole     = &Error{Code: CodeInsufficientRole, Message: "insufficient role"}
	ErrStoreUnavailable     = &Error{Code: CodeStoreUnavailable, Message: "session store unavailable"}
	ErrInvalidInput         = &Error{Code: CodeInvalidInput, Message: "invalid input"}
)

// CodeOf extracts the code of a tagged error, or "" for anything else.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
