package currency

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Preference is what is remembered per visitor: the explicitly or
// automatically selected currency and the currency detected from the
// visitor's location.
type Preference struct {
	Selected string
	Local    string
}

// PreferenceStore persists a visitor's currency preference.
// Get returns a zero Preference and nil error when nothing is stored.
type PreferenceStore interface {
	Get(ctx context.Context, visitorID string) (Preference, error)
	Save(ctx context.Context, visitorID string, pref Preference) error
}

const preferenceTTL = 365 * 24 * time.Hour

type RedisPreferenceStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisPreferenceStore(client redis.Cmdable) *RedisPreferenceStore {
	return &RedisPreferenceStore{client: client, prefix: "currency:pref:"}
}

func (s *RedisPreferenceStore) Get(ctx context.Context, visitorID string) (Preference, error) {
	vals, err := s.client.HGetAll(ctx, s.prefix+visitorID).Result()
	if err != nil {
		return Preference{}, err
	}
	return Preference{Selected: vals["selected"], Local: vals["local"]}, nil
}

func (s *RedisPreferenceStore) Save(ctx context.Context, visitorID string, pref Preference) error {
	key := s.prefix + visitorID
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "selected", pref.Selected, "local", pref.Local)
		pipe.Expire(ctx, key, preferenceTTL)
		return nil
	})
	return err
}

// MemoryPreferenceStore keeps preferences in process memory. Used in tests
// and when Redis is not configured.
type MemoryPreferenceStore struct {
	mu    sync.RWMutex
	prefs map[string]Preference
}

func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{prefs: make(map[string]Preference)}
}

func (s *MemoryPreferenceStore) Get(_ context.Context, visitorID string) (Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs[visitorID], nil
}

func (s *MemoryPreferenceStore) Save(_ context.Context, visitorID string, pref Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[visitorID] = pref
	return nil
}
