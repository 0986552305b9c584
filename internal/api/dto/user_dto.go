package dto

import (
	"time"

	"github.com/spec-kit/auth-service/internal/domain"
)

// UserRegisterRequest payload for new accounts.
type UserRegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Balance  int64  `json:"balance"`
}

// UserResponse is the public view of an account; the password hash is never exposed.
type UserResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	Admin     bool      `json:"admin"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserResponse maps a domain user to its public view.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Roles:     u.Roles,
		Admin:     u.HasRole(domain.RoleAdmin),
		Balance:   u.Balance,
		CreatedAt: u.CreatedAt,
	}
}

// RegisterResponse is returned with 201 after registration.
type RegisterResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}
