package authority

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const credentialsKey = "authority:credentials"

// Store persists the credentials blob.
type Store interface {
	Get(ctx context.Context) (*Credentials, error)
	Set(ctx context.Context, c *Credentials) error
}

// RedisStore keeps the credentials as JSON under a fixed key.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("authority: redis client required")
	}
	return &RedisStore{redis: client}
}

// Get returns the stored credentials, or defaults when none were saved.
func (s *RedisStore) Get(ctx context.Context) (*Credentials, error) {
	data, err := s.redis.Get(ctx, credentialsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("authority: get credentials: %w", err)
	}

	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("authority: unmarshal credentials: %w", err)
	}
	return &c, nil
}

func (s *RedisStore) Set(ctx context.Context, c *Credentials) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("authority: marshal credentials: %w", err)
	}
	if err := s.redis.Set(ctx, credentialsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("authority: set credentials: %w", err)
	}
	return nil
}

// MemoryStore is used when Redis is not configured.
type MemoryStore struct {
	mu sync.RWMutex
	c  *Credentials
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(context.Context) (*Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.c == nil {
		return Default(), nil
	}
	cp := *s.c
	return &cp, nil
}

func (s *MemoryStore) Set(_ context.Context, c *Credentials) error {
	cp := *c
	s.mu.Lock()
	s.c = &cp
	s.mu.Unlock()
	return nil
}
