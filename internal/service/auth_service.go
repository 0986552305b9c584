package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/repository"
)

// dummyPassword is hashed once at startup so logins for unknown usernames
// cost one hash comparison, same as a wrong password.
const dummyPassword = "timing-equalization-placeholder"

// AuthService coordinates registration, login and token authorization.
type AuthService struct {
	users         repository.UserRepository
	sessions      repository.SessionRepository
	hasher        auth.PasswordHasher
	codec         *auth.TokenCodec
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	tokenTTL      time.Duration
	lookupTimeout time.Duration
	dummyHash     string
}

// AuthDependencies encapsulates collaborators for the auth service.
// SessionRepo is optional; without it tokens cannot be revoked early.
type AuthDependencies struct {
	UserRepo    repository.UserRepository
	SessionRepo repository.SessionRepository
	Hasher      auth.PasswordHasher
	Codec       *auth.TokenCodec
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// Registration is the candidate account submitted to Register/RegisterAdmin.
type Registration struct {
	Username string
	Email    string
	Password string
	Balance  int64
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token   *domain.Token
	Subject string
	User    *domain.User
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) (*AuthService, error) {
	if deps.UserRepo == nil {
		return nil, errors.New("auth service: user repository required")
	}
	if cfg.TokenTTLSeconds <= 0 {
		return nil, errors.New("auth service: token ttl must be positive")
	}

	codec := deps.Codec
	if codec == nil {
		var err error
		codec, err = auth.NewTokenCodec([]byte(cfg.JWTSecret))
		if err != nil {
			return nil, err
		}
	}
	hasher := deps.Hasher
	if hasher == nil {
		hasher = auth.NewBcryptHasher(cfg.BcryptCost)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("auth service: prepare dummy hash: %w", err)
	}

	s := &AuthService{
		users:         deps.UserRepo,
		hasher:        hasher,
		codec:         codec,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		tokenTTL:      cfg.TokenTTL(),
		lookupTimeout: cfg.RevocationLookupTimeout(),
		dummyHash:     dummyHash,
	}
	if cfg.RevocationEnabled {
		s.sessions = deps.SessionRepo
	}
	return s, nil
}

// RevocationEnabled reports whether issued tokens are tracked in the session store.
func (s *AuthService) RevocationEnabled() bool {
	return s.sessions != nil
}

// Login checks credentials and issues a token for the user.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, domain.NewError(domain.CodeInvalidInput, "username and password required", nil)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.Matches(password, s.dummyHash)
		s.publish(ctx, events.EventLoginFailed, username, events.LoginFailedPayload{Reason: string(domain.CodeUserNotFound)})
		return nil, domain.NewError(domain.CodeUserNotFound, "user not found", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !s.hasher.Matches(password, user.PasswordHash) {
		s.publish(ctx, events.EventLoginFailed, username, events.LoginFailedPayload{Reason: string(domain.CodeInvalidCredentials)})
		return nil, domain.NewError(domain.CodeInvalidCredentials, "invalid credentials", nil)
	}
	if len(user.Roles) == 0 {
		return nil, fmt.Errorf("user %d has no roles", user.ID)
	}

	token, err := s.codec.Issue(user.Username, user.Roles, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	if s.sessions != nil {
		ttl := token.Claims.ExpiresAt.Sub(token.Claims.IssuedAt)
		if err := s.sessions.Set(ctx, token.Raw, user.Username, ttl); err != nil {
			return nil, domain.NewError(domain.CodeStoreUnavailable, "could not record session", err)
		}
	}

	s.publish(ctx, events.EventLoginSucceeded, user.Username, events.LoginSucceededPayload{
		TokenID:   token.Claims.ID,
		ExpiresAt: token.Claims.ExpiresAt,
		Tracked:   s.sessions != nil,
	})
	return &LoginResult{Token: token, Subject: user.Username, User: user}, nil
}

// Authorize verifies rawToken and, when requiredRole is non-empty, demands it
// among the token's roles. With revocation enabled the token's session record
// must still exist; a store failure denies access.
func (s *AuthService) Authorize(ctx context.Context, rawToken, requiredRole string) (*domain.ClaimSet, error) {
	claims, err := s.codec.Verify(rawToken)
	if err != nil {
		s.denied(ctx, "", requiredRole, err)
		return nil, err
	}

	if s.sessions != nil {
		if err := s.checkSession(ctx, rawToken, claims.Subject); err != nil {
			s.denied(ctx, claims.Subject, requiredRole, err)
			return nil, err
		}
	}

	if requiredRole != "" && !claims.HasRole(requiredRole) {
		err := domain.NewError(domain.CodeInsufficientRole, "role "+requiredRole+" required", nil)
		s.denied(ctx, claims.Subject, requiredRole, err)
		return nil, err
	}
	return claims, nil
}

func (s *AuthService) checkSession(ctx context.Context, rawToken, subject string) error {
	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	owner, err := s.sessions.Get(lookupCtx, rawToken)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return domain.NewError(domain.CodeRevoked, "session revoked", nil)
	case err != nil:
		return domain.NewError(domain.CodeStoreUnavailable, "session lookup failed", err)
	case owner != subject:
		return domain.NewError(domain.CodeRevoked, "session does not belong to token subject", nil)
	}
	return nil
}

// Logout revokes the session record of rawToken. Without revocation
// tracking it only verifies the token.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.codec.Verify(rawToken)
	if err != nil {
		return err
	}
	if s.sessions == nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, rawToken); err != nil {
		return domain.NewError(domain.CodeStoreUnavailable, "could not revoke session", err)
	}
	s.publish(ctx, events.EventSessionRevoked, claims.Subject, events.SessionRevokedPayload{
		TokenID: claims.ID,
		Count:   1,
		Reason:  "logout",
	})
	return nil
}

// RevokeSubject removes every tracked session of subject.
func (s *AuthService) RevokeSubject(ctx context.Context, subject, reason string) (int, error) {
	if s.sessions == nil {
		return 0, nil
	}
	n, err := s.sessions.DeleteBySubject(ctx, subject)
	if err != nil {
		return 0, domain.NewError(domain.CodeStoreUnavailable, "could not revoke sessions", err)
	}
	s.publish(ctx, events.EventSessionRevoked, subject, events.SessionRevokedPayload{Count: n, Reason: reason})
	return n, nil
}

// Register creates an account holding ROLE_USER.
func (s *AuthService) Register(ctx context.Context, reg Registration) (*domain.User, error) {
	return s.createUserWithRole(ctx, reg, domain.RoleUser)
}

// RegisterAdmin creates an account holding ROLE_ADMIN.
func (s *AuthService) RegisterAdmin(ctx context.Context, reg Registration) (*domain.User, error) {
	return s.createUserWithRole(ctx, reg, domain.RoleAdmin)
}

func (s *AuthService) createUserWithRole(ctx context.Context, reg Registration, role string) (*domain.User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if reg.Username == "" || reg.Email == "" || reg.Password == "" {
		return nil, domain.NewError(domain.CodeInvalidInput, "username, email and password required", nil)
	}
	if err := checkPasswordLength(reg.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByUsername(ctx, reg.Username); err == nil {
		return nil, domain.NewError(domain.CodeUsernameTaken, "username already exists", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	if _, err := s.users.FindByEmail(ctx, reg.Email); err == nil {
		return nil, domain.NewError(domain.CodeEmailTaken, "email already exists", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := s.hashPassword(reg.Password)
	if err != nil {
		return nil, err
	}

	saved, err := s.users.Save(ctx, &domain.User{
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hash,
		Roles:        []string{role},
		Balance:      reg.Balance,
	})
	switch {
	case errors.Is(err, repository.ErrDuplicateUsername):
		return nil, domain.NewError(domain.CodeUsernameTaken, "username already exists", err)
	case errors.Is(err, repository.ErrDuplicateEmail):
		return nil, domain.NewError(domain.CodeEmailTaken, "email already exists", err)
	case err != nil:
		return nil, fmt.Errorf("save user: %w", err)
	}

	s.publish(ctx, events.EventUserRegistered, saved.Username, events.UserRegisteredPayload{UserID: saved.ID, Role: role})
	return saved, nil
}

// GetUserByID loads a single account.
func (s *AuthService) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NewError(domain.CodeUserNotFound, "user not found", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	return user, nil
}

// ListUsers returns every account ordered by id.
func (s *AuthService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := s.users.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// DeleteUser removes an account and revokes its sessions.
func (s *AuthService) DeleteUser(ctx context.Context, id int64) error {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewError(domain.CodeUserNotFound, "user not found", nil)
		}
		return err
	}

	revoked, err := s.RevokeSubject(ctx, user.Username, "user_deleted")
	if err != nil {
		s.logger.Warn("sessions of deleted user not revoked", zap.Int64("user_id", id), zap.Error(err))
	}
	s.publish(ctx, events.EventUserDeleted, user.Username, events.UserDeletedPayload{UserID: id, RevokedSessions: revoked})
	return nil
}

// ChangePassword replaces subject's password after checking the current one
// and revokes all of its sessions.
func (s *AuthService) ChangePassword(ctx context.Context, subject, currentPassword, newPassword string) error {
	if newPassword == "" {
		return domain.NewError(domain.CodeInvalidInput, "new password required", nil)
	}
	if err := checkPasswordLength(newPassword); err != nil {
		return err
	}

	user, err := s.users.FindByUsername(ctx, subject)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NewError(domain.CodeUserNotFound, "user not found", nil)
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if !s.hasher.Matches(currentPassword, user.PasswordHash) {
		return domain.NewError(domain.CodeInvalidCredentials, "invalid credentials", nil)
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if _, err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	s.publish(ctx, events.EventPasswordChanged, subject, nil)
	if _, err := s.RevokeSubject(ctx, subject, "password_changed"); err != nil {
		return err
	}
	return nil
}

func checkPasswordLength(password string) error {
	if len(password) > auth.MaxPasswordBytes {
		return domain.NewError(domain.CodeInvalidInput,
			fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes), nil)
	}
	return nil
}

func (s *AuthService) hashPassword(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", domain.NewError(domain.CodeInvalidInput, "password too long", err)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (s *AuthService) denied(ctx context.Context, subject, requiredRole string, err error) {
	s.publish(ctx, events.EventAccessDenied, subject, events.AccessDeniedPayload{
		Reason:       string(domain.CodeOf(err)),
		RequiredRole: requiredRole,
	})
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, subject string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("type", string(eventType)), zap.Error(err))
	}
}
