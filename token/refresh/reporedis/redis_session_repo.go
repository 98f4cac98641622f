// Package redissessionrepo implements the refresh session store over Redis.
// Rotation uses an optimistic WATCH transaction on the old token's key so that
// two concurrent rotations off the same token cannot both commit.
package redissessionrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acadnet/acadnet/token/refresh"
)

const (
	sessionKeyPrefix = "rs"
	userSetKeyPrefix = "rsu"
	rotateRetries    = 4
)

var _ refresh.Repo = (*RedisSessionRepo)(nil)

// RedisSessionRepo implements refresh.Repo over a Redis client. Natural expiry
// is delegated to key TTLs; the per-user index set tracks tokens for
// DeleteAllForUser.
type RedisSessionRepo struct {
	redis *redis.Client
}

func NewRedisSessionRepo(client *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{redis: client}
}

type sessionRecord struct {
	UserID    int64     `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func sessionKey(token string) string {
	return sessionKeyPrefix + ":" + token
}

func userSetKey(userID int64) string {
	return userSetKeyPrefix + ":" + strconv.FormatInt(userID, 10)
}

func (r *RedisSessionRepo) Create(ctx context.Context, session *refresh.Session) error {
	encoded, err := json.Marshal(sessionRecord{
		UserID:    session.UserID,
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return err
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.Token), encoded, ttl)
		pipe.SAdd(ctx, userSetKey(session.UserID), session.Token)
		pipe.Expire(ctx, userSetKey(session.UserID), ttl)
		return nil
	})
	if err != nil {
		return wrapRedisError(err)
	}
	return nil
}

func (r *RedisSessionRepo) Get(ctx context.Context, token string) (*refresh.Session, error) {
	data, err := r.redis.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, refresh.ErrRevoked
		}
		return nil, wrapRedisError(err)
	}

	record := sessionRecord{}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}

	return &refresh.Session{
		Token:     token,
		UserID:    record.UserID,
		IssuedAt:  record.IssuedAt,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

func (r *RedisSessionRepo) Rotate(ctx context.Context, oldToken string, next *refresh.Session) error {
	oldKey := sessionKey(oldToken)

	for i := 0; i < rotateRetries; i++ {
		err := r.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, oldKey).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return refresh.ErrRevoked
				}
				return err
			}

			old := sessionRecord{}
			if err := json.Unmarshal(data, &old); err != nil {
				return fmt.Errorf("decode session record: %w", err)
			}

			encoded, err := json.Marshal(sessionRecord{
				UserID:    next.UserID,
				IssuedAt:  next.IssuedAt,
				ExpiresAt: next.ExpiresAt,
			})
			if err != nil {
				return err
			}

			ttl := time.Until(next.ExpiresAt)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, oldKey)
				pipe.SRem(ctx, userSetKey(old.UserID), oldToken)
				pipe.Set(ctx, sessionKey(next.Token), encoded, ttl)
				pipe.SAdd(ctx, userSetKey(next.UserID), next.Token)
				pipe.Expire(ctx, userSetKey(next.UserID), ttl)
				return nil
			})
			return err
		}, oldKey)

		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			// The watched key changed under us; the loser of the race will
			// observe the deletion on retry and report ErrRevoked.
			continue
		}
		if errors.Is(err, refresh.ErrRevoked) {
			return refresh.ErrRevoked
		}
		return wrapRedisError(err)
	}

	return refresh.ErrRevoked
}

func (r *RedisSessionRepo) Delete(ctx context.Context, token string) error {
	session, err := r.Get(ctx, token)
	if err != nil {
		if errors.Is(err, refresh.ErrRevoked) {
			return nil
		}
		return err
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(token))
		pipe.SRem(ctx, userSetKey(session.UserID), token)
		return nil
	})
	if err != nil {
		return wrapRedisError(err)
	}
	return nil
}

func (r *RedisSessionRepo) DeleteAllForUser(ctx context.Context, userID int64) error {
	tokens, err := r.redis.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return wrapRedisError(err)
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, token := range tokens {
			pipe.Del(ctx, sessionKey(token))
		}
		pipe.Del(ctx, userSetKey(userID))
		return nil
	})
	if err != nil {
		return wrapRedisError(err)
	}
	return nil
}

func wrapRedisError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	return fmt.Errorf("redis error: %w", err)
}
