package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-service/internal/repository"
)

func newSessionRepo(t *testing.T) (repository.SessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return repository.NewSessionRepository(client), mr
}

func TestSessionRepositorySetGetDelete(t *testing.T) {
	repo, mr := newSessionRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "token-a", "alice", time.Minute))

	subject, err := repo.Get(ctx, "token-a")
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)

	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "token-a")
	}

	require.NoError(t, repo.Delete(ctx, "token-a"))
	_, err = repo.Get(ctx, "token-a")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, "token-a"))
}

func TestSessionRepositoryExpires(t *testing.T) {
	repo, mr := newSessionRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "token-a", "alice", time.Second))
	mr.FastForward(2 * time.Second)

	_, err := repo.Get(ctx, "token-a")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessionRepositoryRejectsNonPositiveTTL(t *testing.T) {
	repo, _ := newSessionRepo(t)
	assert.Error(t, repo.Set(context.Background(), "token-a", "alice", 0))
}

func TestSessionRepositoryDeleteBySubject(t *testing.T) {
	repo, _ := newSessionRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "token-a", "alice", time.Minute))
	require.NoError(t, repo.Set(ctx, "token-b", "alice", time.Minute))
	require.NoError(t, repo.Set(ctx, "token-c", "bob", time.Minute))

	n, err := repo.DeleteBySubject(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = repo.Get(ctx, "token-a")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.Get(ctx, "token-b")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	subject, err := repo.Get(ctx, "token-c")
	require.NoError(t, err)
	assert.Equal(t, "bob", subject)

	n, err = repo.DeleteBySubject(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionRepositoryStoreDown(t *testing.T) {
	repo, mr := newSessionRepo(t)
	ctx := context.Background()
	mr.Close()

	_, err := repo.Get(ctx, "token-a")
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
}
