package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minus-twelve/geoquest/types"
)

const defaultRedisPrefix = "geoquest:"

// RedisStore keeps sessions as JSON strings under <prefix>session:<id>.
// Expiry is delegated to redis when a TTL is configured.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects and pings the server before returning.
func NewRedisStore(cfg types.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	return NewRedisStoreWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + "session:" + id
}

func (r *RedisStore) Create(ctx context.Context, id string, session types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.key(id), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !created {
		return ErrDuplicateSession
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (types.Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Session{}, ErrSessionNotFound
		}
		return types.Session{}, fmt.Errorf("get session: %w", err)
	}

	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return types.Session{}, fmt.Errorf("decode session: %w", err)
	}
	if session.Attempts == nil {
		session.Attempts = make(map[int]int)
	}
	return session, nil
}

// Put replaces the stored session and refreshes its TTL. The last writer
// wins; a session that expired in the meantime is reported as not found.
func (r *RedisStore) Put(ctx context.Context, id string, session types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	updated, err := r.client.SetXX(ctx, r.key(id), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	if !updated {
		return ErrSessionNotFound
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

// Cleanup is a no-op: redis expires keys on its own.
func (r *RedisStore) Cleanup(context.Context, time.Duration) error {
	return nil
}

func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
