package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry stores sessions in Redis so they survive restarts and are
// shared across replicas.
type RedisRegistry struct {
	client *redis.Client
	prefix string
}

func NewRedisRegistry(redisURL string) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisRegistry{client: client, prefix: "session:"}, nil
}

// NewRedisRegistryWithClient creates a registry from an existing Redis client
func NewRedisRegistryWithClient(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client, prefix: "session:"}
}

func (r *RedisRegistry) key(tokenHash string) string {
	return r.prefix + tokenHash
}

func (r *RedisRegistry) Save(ctx context.Context, tokenHash string, sess Session) error {
	jsonData, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	if err := r.client.Set(ctx, r.key(tokenHash), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, tokenHash string) (Session, error) {
	jsonData, err := r.client.Get(ctx, r.key(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(jsonData), &sess); err != nil {
		return Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

func (r *RedisRegistry) Revoke(ctx context.Context, tokenHash string) error {
	if err := r.client.Del(ctx, r.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
