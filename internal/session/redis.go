package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRegistry stores sessions as Redis keys with a TTL equal to the
// idle duration; Redis does the expiry bookkeeping for us. Validation
// refreshes the TTL atomically with the read (GETEX), which is exactly
// the "refresh last-activity" contract.
type RedisRegistry struct {
	client  *redis.Client
	idleTTL time.Duration
}

func NewRedisRegistry(redisURL string, idleTTL time.Duration) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisRegistry{
		client:  redis.NewClient(opts),
		idleTTL: idleTTL,
	}, nil
}

func sessionKey(token string) string {
	return "session:" + token
}

func (r *RedisRegistry) Create(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	err := r.client.Set(ctx, sessionKey(token), strconv.FormatInt(userID, 10), r.idleTTL).Err()
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func (r *RedisRegistry) Validate(ctx context.Context, token string) (int64, error) {
	val, err := r.client.GetEx(ctx, sessionKey(token), r.idleTTL).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrInvalidSession
		}
		return 0, fmt.Errorf("lookup session: %w", err)
	}

	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt session value: %w", err)
	}
	return userID, nil
}

func (r *RedisRegistry) Revoke(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
