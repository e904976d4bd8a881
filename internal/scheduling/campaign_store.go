package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	campaignTTL        = 30 * 24 * time.Hour
	maxCampaignRetries = 5
)

// CampaignStore persists campaigns. Update applies fn atomically so the
// delivery worker and the confirming request never overwrite each other.
type CampaignStore interface {
	Save(ctx context.Context, c *Campaign) error
	Get(ctx context.Context, id string) (*Campaign, error)
	Update(ctx context.Context, id string, fn func(*Campaign) error) (*Campaign, error)
}

// UpdateTask is a convenience over Update for a single task.
func UpdateTask(ctx context.Context, store CampaignStore, campaignID, appointmentID string, fn func(*Task)) (*Campaign, error) {
	return store.Update(ctx, campaignID, func(c *Campaign) error {
		t, ok := c.Tasks[appointmentID]
		if !ok {
			return ErrTaskNotFound
		}
		fn(t)
		return nil
	})
}

// ClaimTask moves a queued task to sending. Any other state returns
// ErrTaskNotQueued, so a redelivered job never sends twice.
func ClaimTask(ctx context.Context, store CampaignStore, campaignID, appointmentID string) (*Task, error) {
	var claimed Task
	_, err := store.Update(ctx, campaignID, func(c *Campaign) error {
		t, ok := c.Tasks[appointmentID]
		if !ok {
			return ErrTaskNotFound
		}
		if t.State != TaskQueued {
			return ErrTaskNotQueued
		}
		t.State = TaskSending
		claimed = *t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

type MemoryCampaignStore struct {
	mu        sync.Mutex
	campaigns map[string]*Campaign
}

func NewMemoryCampaignStore() *MemoryCampaignStore {
	return &MemoryCampaignStore{campaigns: make(map[string]*Campaign)}
}

func (s *MemoryCampaignStore) Save(_ context.Context, c *Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (s *MemoryCampaignStore) Get(_ context.Context, id string) (*Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	return cloneCampaign(c), nil
}

func (s *MemoryCampaignStore) Update(_ context.Context, id string, fn func(*Campaign) error) (*Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	next := cloneCampaign(c)
	if err := fn(next); err != nil {
		return nil, err
	}
	s.campaigns[id] = next
	return cloneCampaign(next), nil
}

// RedisCampaignStore keeps each campaign as a JSON blob. Update uses
// WATCH/MULTI and retries when another writer touched the key.
type RedisCampaignStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCampaignStore(client *redis.Client) *RedisCampaignStore {
	if client == nil {
		panic("scheduling: redis client required")
	}
	return &RedisCampaignStore{redis: client, ttl: campaignTTL}
}

func campaignKey(id string) string {
	return "scheduling:campaign:" + id
}

func (s *RedisCampaignStore) Save(ctx context.Context, c *Campaign) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("scheduling: marshal campaign: %w", err)
	}
	if err := s.redis.Set(ctx, campaignKey(c.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("scheduling: save campaign: %w", err)
	}
	return nil
}

func (s *RedisCampaignStore) Get(ctx context.Context, id string) (*Campaign, error) {
	return s.read(ctx, s.redis, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisCampaignStore) read(ctx context.Context, r getter, id string) (*Campaign, error) {
	data, err := r.Get(ctx, campaignKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: get campaign: %w", err)
	}
	var c Campaign
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("scheduling: unmarshal campaign: %w", err)
	}
	if c.Tasks == nil {
		c.Tasks = map[string]*Task{}
	}
	return &c, nil
}

func (s *RedisCampaignStore) Update(ctx context.Context, id string, fn func(*Campaign) error) (*Campaign, error) {
	key := campaignKey(id)
	var updated *Campaign
	txf := func(tx *redis.Tx) error {
		c, err := s.read(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("scheduling: marshal campaign: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			updated = c
		}
		return err
	}

	for i := 0; i < maxCampaignRetries; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("scheduling: update campaign %s: too many concurrent writers", id)
}
