package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const profileKey = "clinic:profile"

// Store persists the single clinic profile. Get returns the defaults until
// the profile is first saved.
type Store interface {
	Get(ctx context.Context) (*Profile, error)
	Set(ctx context.Context, p *Profile) error
}

type RedisStore struct {
	redis    *redis.Client
	defaults Defaults
}

func NewRedisStore(client *redis.Client, defaults Defaults) *RedisStore {
	if client == nil {
		panic("clinic: redis client required")
	}
	return &RedisStore{redis: client, defaults: defaults}
}

func (s *RedisStore) Get(ctx context.Context) (*Profile, error) {
	data, err := s.redis.Get(ctx, profileKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultProfile(s.defaults), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal profile: %w", err)
	}
	return &p, nil
}

func (s *RedisStore) Set(ctx context.Context, p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("clinic: marshal profile: %w", err)
	}
	if err := s.redis.Set(ctx, profileKey, data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set profile: %w", err)
	}
	return nil
}

type MemoryStore struct {
	mu       sync.RWMutex
	profile  *Profile
	defaults Defaults
}

func NewMemoryStore(defaults Defaults) *MemoryStore {
	return &MemoryStore{defaults: defaults}
}

func (s *MemoryStore) Get(context.Context) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return DefaultProfile(s.defaults), nil
	}
	cp := *s.profile
	return &cp, nil
}

func (s *MemoryStore) Set(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profile = &cp
	return nil
}
