package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kant-ai/bandsaw/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// RedisStore keeps results in Redis as JSON documents.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the expiration for entries.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for entries.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a store connected to address.
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb, opts...)
}

// NewRedisStoreFromClient creates a store from an existing client.
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: "bandsaw:cache:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(taskID, executionID string) string {
	return s.prefix + taskID + ":" + executionID
}

func (s *RedisStore) Load(ctx context.Context, taskID, executionID string) (*domain.Result, error) {
	val, err := s.client.Get(ctx, s.key(taskID, executionID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var result domain.Result
	if err := result.UnmarshalJSON(val); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// Store uses SET NX so concurrent writers keep the first result.
func (s *RedisStore) Store(ctx context.Context, taskID, executionID string, result *domain.Result) (bool, error) {
	data, err := result.MarshalJSON()
	if err != nil {
		return false, fmt.Errorf("failed to marshal result: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(taskID, executionID), data, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to save to redis: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, taskID, executionID string) error {
	return s.client.Del(ctx, s.key(taskID, executionID)).Err()
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
