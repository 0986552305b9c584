package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:token:"
	subjectKeyPrefix = "session:subject:"
)

// SessionRepository tracks issued tokens so they can be revoked before expiry.
type SessionRepository interface {
	// Set records token for subject; the record disappears after ttl.
	Set(ctx context.Context, token, subject string, ttl time.Duration) error
	// Get returns the subject recorded for token, or ErrNotFound.
	Get(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
	// DeleteBySubject removes every recorded session of subject and returns how many existed.
	DeleteBySubject(ctx context.Context, subject string) (int, error)
}

type redisSessionRepository struct {
	client *redis.Client
}

// NewSessionRepository returns a Redis-backed implementation. Token strings
// are stored as SHA-256 digests so Redis never holds usable bearer tokens.
func NewSessionRepository(client *redis.Client) SessionRepository {
	return &redisSessionRepository{client: client}
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func sessionKey(digest string) string {
	return sessionKeyPrefix + digest
}

func subjectKey(subject string) string {
	return subjectKeyPrefix + subject
}

func (r *redisSessionRepository) Set(ctx context.Context, token, subject string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	digest := tokenDigest(token)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(digest), subject, ttl)
		pipe.SAdd(ctx, subjectKey(subject), digest)
		pipe.Expire(ctx, subjectKey(subject), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (r *redisSessionRepository) Get(ctx context.Context, token string) (string, error) {
	subject, err := r.client.Get(ctx, sessionKey(tokenDigest(token))).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	return subject, nil
}

func (r *redisSessionRepository) Delete(ctx context.Context, token string) error {
	digest := tokenDigest(token)
	subject, err := r.client.Get(ctx, sessionKey(digest)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(digest))
		pipe.SRem(ctx, subjectKey(subject), digest)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *redisSessionRepository) DeleteBySubject(ctx context.Context, subject string) (int, error) {
	digests, err := r.client.SMembers(ctx, subjectKey(subject)).Result()
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	if len(digests) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(digests))
	for _, digest := range digests {
		keys = append(keys, sessionKey(digest))
	}

	var deleted *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		pipe.Del(ctx, subjectKey(subject))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return int(deleted.Val()), nil
}
