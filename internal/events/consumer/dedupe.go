package consumer

import (
	"context"
	"sync"
	"time"

	"lnbridge/internal/platform/redis"
)

// ProcessedStore remembers event identities the loop has already published,
// so broker redeliveries after a crash between publish and ack do not
// produce duplicate events.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, key string) error
}

// RedisStore keeps processed keys in Redis with a retention TTL, shared
// across bridge replicas.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisStore wraps a connected Redis client.
func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, retention: retention}
}

func (s *RedisStore) key(k string) string {
	return "lnbridge:processed:" + k
}

func (s *RedisStore) HasProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) MarkProcessed(ctx context.Context, key string) error {
	return s.client.Set(ctx, s.key(key), 1, s.retention).Err()
}

// MemoryStore is the single-process fallback when Redis is not configured.
type MemoryStore struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewMemoryStore creates an in-memory processed store.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		seen:      make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryStore) HasProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.seen[key]
	if !ok {
		return false, nil
	}
	if s.now().After(expires) {
		delete(s.seen, key)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) MarkProcessed(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[key] = s.now().Add(s.retention)
	return nil
}
