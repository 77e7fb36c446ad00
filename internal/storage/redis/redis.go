// Package redis provides a Redis-backed implementation of the storage.Store interface.
// Each document body is kept as one string value.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/qqoqto/travel-planner/internal/storage"
)

// Ensure RedisStore implements storage.Store
var _ storage.Store = (*RedisStore)(nil)

// DefaultKeyPrefix namespaces document keys.
const DefaultKeyPrefix = "tripsync:doc:"

// Config holds connection settings.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore implements storage.Store using Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client. An empty prefix uses DefaultKeyPrefix.
func NewWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(documentID string) string {
	return s.prefix + documentID
}

// LoadDocument retrieves the stored body of a document.
func (s *RedisStore) LoadDocument(ctx context.Context, documentID string) (json.RawMessage, error) {
	b, err := s.client.Get(ctx, s.key(documentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("document %s: %w", documentID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return json.RawMessage(b), nil
}

// SaveDocument replaces the stored body of a document. Documents do not expire.
func (s *RedisStore) SaveDocument(ctx context.Context, documentID string, body json.RawMessage) error {
	if err := s.client.Set(ctx, s.key(documentID), []byte(body), 0).Err(); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// DeleteDocument removes a document if present.
func (s *RedisStore) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.client.Del(ctx, s.key(documentID)).Err(); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
