package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	messageKeyPrefix   = "portal:messages:"
	messageTTL         = 180 * 24 * time.Hour
	maxStoredMessages  = 500
	defaultListMessage = 100
)

// MessageStore keeps each client's thread, oldest first.
type MessageStore interface {
	Append(ctx context.Context, msg Message) error
	List(ctx context.Context, clientID string, limit int64) ([]Message, error)
}

// RedisMessageStore keeps a capped Redis list per client.
type RedisMessageStore struct {
	redis       *redis.Client
	tracer      trace.Tracer
	maxMessages int64
}

func NewRedisMessageStore(client *redis.Client) *RedisMessageStore {
	if client == nil {
		return nil
	}
	return &RedisMessageStore{
		redis:       client,
		tracer:      otel.Tracer("vethome.internal.portal.messages"),
		maxMessages: maxStoredMessages,
	}
}

func messageKey(clientID string) string {
	return messageKeyPrefix + clientID
}

func (s *RedisMessageStore) Append(ctx context.Context, msg Message) error {
	if msg.ClientID == "" {
		return ErrClientRequired
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("portal: marshal message: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "portal.messages.append")
	defer span.End()

	key := messageKey(msg.ClientID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, messageTTL)
	pipe.LTrim(ctx, key, -s.maxMessages, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("portal: append message: %w", err)
	}
	return nil
}

func (s *RedisMessageStore) List(ctx context.Context, clientID string, limit int64) ([]Message, error) {
	if clientID == "" {
		return nil, ErrClientRequired
	}
	ctx, span := s.tracer.Start(ctx, "portal.messages.list")
	defer span.End()

	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	raw, err := s.redis.LRange(ctx, messageKey(clientID), start, -1).Result()
	if errors.Is(err, redis.Nil) {
		return []Message{}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("portal: list messages: %w", err)
	}

	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages map[string][]Message
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{messages: make(map[string][]Message)}
}

func (s *MemoryMessageStore) Append(_ context.Context, msg Message) error {
	if msg.ClientID == "" {
		return ErrClientRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	thread := append(s.messages[msg.ClientID], msg)
	if len(thread) > maxStoredMessages {
		thread = thread[len(thread)-maxStoredMessages:]
	}
	s.messages[msg.ClientID] = thread
	return nil
}

func (s *MemoryMessageStore) List(_ context.Context, clientID string, limit int64) ([]Message, error) {
	if clientID == "" {
		return nil, ErrClientRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	thread := s.messages[clientID]
	if limit > 0 && int64(len(thread)) > limit {
		thread = thread[int64(len(thread))-limit:]
	}
	return append([]Message{}, thread...), nil
}
