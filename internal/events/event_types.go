package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered  EventType = "user_registered"
	EventUserDeleted     EventType = "user_deleted"
	EventLoginSucceeded  EventType = "login_succeeded"
	EventLoginFailed     EventType = "login_failed"
	EventSessionRevoked  EventType = "session_revoked"
	EventPasswordChanged EventType = "password_changed"
	EventAccessDenied    EventType = "access_denied"
)

// Event represents an auth event emitted by services. Payloads never carry
// token strings or passwords.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Subject   string      `json:"subject,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// UserDeletedPayload payload.
type UserDeletedPayload struct {
	UserID          int64 `json:"user_id"`
	RevokedSessions int   `json:"revoked_sessions"`
}

// LoginFailedPayload payload.
type LoginFailedPayload struct {
	Reason string `json:"reason"`
}

// LoginSucceededPayload payload.
type LoginSucceededPayload struct {
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Tracked   bool      `json:"tracked"`
}

// SessionRevokedPayload payload.
type SessionRevokedPayload struct {
	TokenID string `json:"token_id,omitempty"`
	Count   int    `json:"count"`
	Reason  string `json:"reason"`
}

// AccessDeniedPayload payload.
type AccessDeniedPayload struct {
	Reason       string `json:"reason"`
	RequiredRole string `json:"required_role,omitempty"`
}
