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

// RedisStore keeps sessions as "session:<id>" keys holding the creation time
// (unix seconds), expiring after ttl without access.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func redisKey(id string) string { return "session:" + id }

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	key := redisKey(id)
	val, err := s.rdb.GetEx(ctx, key, s.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	created, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis session %s: bad value %q", key, val)
	}
	return &Session{ID: id, CreatedAt: time.Unix(created, 0)}, nil
}

func (s *RedisStore) Create(ctx context.Context) (*Session, error) {
	sess := Session{ID: uuid.NewString(), CreatedAt: time.Now().Truncate(time.Second)}
	ok, err := s.rdb.SetNX(ctx, redisKey(sess.ID), strconv.FormatInt(sess.CreatedAt.Unix(), 10), s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis create session: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("redis create session: id %s already taken", sess.ID)
	}
	return &sess, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
