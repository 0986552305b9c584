package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/auth-service/internal/domain"
)

// ErrInvalidTokenRequest is returned by Issue when its preconditions fail.
var ErrInvalidTokenRequest = errors.New("invalid token request")

var signingMethod = jwt.SigningMethodHS512

// TokenCodec issues and verifies HS512-signed JWTs with a single shared key.
// It holds no mutable state and is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// CodecOption customizes a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock replaces the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// tokenClaims describes the JWT payload.
type tokenClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// NewTokenCodec builds a codec around secret.
func NewTokenCodec(secret []byte, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token codec: empty signing secret")
	}
	c := &TokenCodec{
		secret: slices.Clone(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)
	return c, nil
}

// Algorithm returns the JWT alg identifier this codec signs with and accepts.
func (c *TokenCodec) Algorithm() string {
	return signingMethod.Alg()
}

// Issue signs a token for subject carrying roles, valid for ttl.
// Sub-second ttl is rounded up since token timestamps have second precision.
func (c *TokenCodec) Issue(subject string, roles []string, ttl time.Duration) (*domain.Token, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidTokenRequest)
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("%w: empty role set", ErrInvalidTokenRequest)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrInvalidTokenRequest)
	}
	if rem := ttl % time.Second; rem != 0 {
		ttl += time.Second - rem
	}

	issuedAt := c.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)
	claims := &tokenClaims{
		Roles: slices.Clone(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	raw, err := jwt.NewWithClaims(signingMethod, claims).SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &domain.Token{
		Raw: raw,
		Claims: domain.ClaimSet{
			ID:        claims.ID,
			Subject:   subject,
			Roles:     slices.Clone(roles),
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}, nil
}

// Verify checks the token's algorithm, signature and expiry and returns its
// claims. Failures are *domain.Error values tagged MALFORMED,
// UNSUPPORTED_ALGORITHM, INVALID_SIGNATURE or EXPIRED.
func (c *TokenCodec) Verify(raw string) (*domain.ClaimSet, error) {
	if raw == "" {
		return nil, domain.NewError(domain.CodeMalformed, "empty token", nil)
	}

	claims := &tokenClaims{}
	if _, err := c.parser.ParseWithClaims(raw, claims, c.keyFunc); err != nil {
		return nil, classifyParseError(err)
	}

	if claims.Subject == "" {
		return nil, domain.NewError(domain.CodeMalformed, "token has no subject", nil)
	}
	if len(claims.Roles) == 0 {
		return nil, domain.NewError(domain.CodeMalformed, "token has no roles", nil)
	}

	set := &domain.ClaimSet{
		ID:        claims.ID,
		Subject:   claims.Subject,
		Roles:     claims.Roles,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		set.IssuedAt = claims.IssuedAt.Time
		if !set.ExpiresAt.After(set.IssuedAt) {
			return nil, domain.NewError(domain.CodeMalformed, "token expires before it is issued", nil)
		}
	}
	return set, nil
}

// keyFunc pins the algorithm before any signature comparison happens.
func (c *TokenCodec) keyFunc(token *jwt.Token) (interface{}, error) {
	alg, _ := token.Header["alg"].(string)
	if alg != signingMethod.Alg() || token.Method.Alg() != signingMethod.Alg() {
		return nil, domain.NewError(
			domain.CodeUnsupportedAlgorithm,
			fmt.Sprintf("algorithm %q not accepted, expected %s", alg, signingMethod.Alg()),
			nil,
		)
	}
	return c.secret, nil
}

func classifyParseError(err error) error {
	var tagged *domain.Error
	switch {
	case errors.As(err, &tagged):
		return tagged
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// alg header missing or naming a method golang-jwt does not know
		return domain.NewError(domain.CodeUnsupportedAlgorithm, "signing algorithm unavailable", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return domain.NewError(domain.CodeInvalidSignature, "signature verification failed", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.NewError(domain.CodeExpired, "token has expired", err)
	default:
		return domain.NewError(domain.CodeMalformed, "malformed token", err)
	}
}
