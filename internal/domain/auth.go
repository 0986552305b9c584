package domain

import (
	"slices"
	"time"
)

// ClaimSet is the identity payload carried by a token.
type ClaimSet struct {
	ID        string
	Subject   string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole is a plain membership test; no role implies another.
func (c *ClaimSet) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// Remaining returns the lifetime left at now, never negative.
func (c *ClaimSet) Remaining(now time.Time) time.Duration {
	d := c.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Token is an issued, signed token together with the claims it encodes.
type Token struct {
	Raw    string
	Claims ClaimSet
}
