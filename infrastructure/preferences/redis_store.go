// Package preferences provides a Redis-backed store for per-document reader
// state.
package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/helixml/marginalia/domain/book"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is prepended to every key.
const DefaultPrefix = "marginalia:prefs:"

// RedisStore implements book.PreferenceStore using Redis. Each document is
// one JSON value.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: DefaultPrefix,
	}
}

func (s *RedisStore) key(document string) string {
	return s.prefix + document
}

// Load returns the preferences for document, or defaults when none are stored.
func (s *RedisStore) Load(ctx context.Context, document string) (book.Preferences, error) {
	data, err := s.client.Get(ctx, s.key(document)).Bytes()
	if errors.Is(err, redis.Nil) {
		return book.DefaultPreferences(), nil
	}
	if err != nil {
		return book.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}

	prefs := book.DefaultPreferences()
	if err := json.Unmarshal(data, &prefs); err != nil {
		return book.Preferences{}, fmt.Errorf("unmarshal preferences: %w", err)
	}
	return prefs, nil
}

// Save replaces the preferences for document.
func (s *RedisStore) Save(ctx context.Context, document string, prefs book.Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	if err := s.client.Set(ctx, s.key(document), data, 0).Err(); err != nil {
		return fmt.Errorf("set preferences: %w", err)
	}
	return nil
}

// Delete removes the preferences for document.
func (s *RedisStore) Delete(ctx context.Context, document string) error {
	if err := s.client.Del(ctx, s.key(document)).Err(); err != nil {
		return fmt.Errorf("delete preferences: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ book.PreferenceStore = (*RedisStore)(nil)
