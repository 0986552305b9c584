package domain

import (
	"slices"
	"time"
)

// Role names carried in token claims.
const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// User is the domain model for registered accounts.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Roles        []string
	Balance      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the user record carries role.
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}
