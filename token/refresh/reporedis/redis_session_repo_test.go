package redissessionrepo_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/acadnet/acadnet/token/refresh"
	redissessionrepo "github.com/acadnet/acadnet/token/refresh/reporedis"
)

func setupRepo(t *testing.T) (*redissessionrepo.RedisSessionRepo, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return redissessionrepo.NewRedisSessionRepo(client), mr
}

func newSession(token string, userID int64) *refresh.Session {
	now := time.Now()
	return &refresh.Session{
		Token:     token,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestCreateAndGet(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	session := newSession("token-a", 1)
	require.NoError(t, repo.Create(ctx, session))

	got, err := repo.Get(ctx, "token-a")
	require.NoError(t, err)
	require.Equal(t, int64(1), got.UserID)
	require.Equal(t, "token-a", got.Token)
}

func TestGetUnknownTokenIsRevoked(t *testing.T) {
	repo, _ := setupRepo(t)

	_, err := repo.Get(context.Background(), "never-created")
	require.ErrorIs(t, err, refresh.ErrRevoked)
}

func TestRotateConsumesOldToken(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newSession("old", 1)))
	require.NoError(t, repo.Rotate(ctx, "old", newSession("new", 1)))

	_, err := repo.Get(ctx, "old")
	require.ErrorIs(t, err, refresh.ErrRevoked)

	got, err := repo.Get(ctx, "new")
	require.NoError(t, err)
	require.Equal(t, int64(1), got.UserID)

	// Replaying the consumed token must not mint another session.
	require.ErrorIs(t, repo.Rotate(ctx, "old", newSession("newer", 1)), refresh.ErrRevoked)
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newSession("contested", 7)))

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.Rotate(ctx, "contested", newSession("winner-"+string(rune('a'+i)), 7))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, refresh.ErrRevoked)
		}
	}
	require.Equal(t, 1, wins)
}

func TestDeleteIsIdempotent(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newSession("gone", 2)))
	require.NoError(t, repo.Delete(ctx, "gone"))
	require.NoError(t, repo.Delete(ctx, "gone"))

	_, err := repo.Get(ctx, "gone")
	require.ErrorIs(t, err, refresh.ErrRevoked)
}

func TestDeleteAllForUser(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newSession("u3-a", 3)))
	require.NoError(t, repo.Create(ctx, newSession("u3-b", 3)))
	require.NoError(t, repo.Create(ctx, newSession("u4-a", 4)))

	require.NoError(t, repo.DeleteAllForUser(ctx, 3))

	_, err := repo.Get(ctx, "u3-a")
	require.ErrorIs(t, err, refresh.ErrRevoked)
	_, err = repo.Get(ctx, "u3-b")
	require.ErrorIs(t, err, refresh.ErrRevoked)

	_, err = repo.Get(ctx, "u4-a")
	require.NoError(t, err)
}

func TestExpiredSessionDisappears(t *testing.T) {
	repo, mr := setupRepo(t)
	ctx := context.Background()

	session := newSession("short-lived", 5)
	session.ExpiresAt = time.Now().Add(time.Second)
	require.NoError(t, repo.Create(ctx, session))

	mr.FastForward(2 * time.Second)

	_, err := repo.Get(ctx, "short-lived")
	require.ErrorIs(t, err, refresh.ErrRevoked)
}
