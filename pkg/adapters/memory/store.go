package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/gocare/pkg/domain"
)

type entry struct {
	sc      *domain.SessionContext
	expires time.Time // zero: never
}

// Store implements ports.SnapshotStore in memory.
// Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]entry
	ttl  time.Duration
	now  func() time.Time
}

// StoreOption configures the Store.
type StoreOption func(*Store)

// WithTTL drops snapshots ttl after their last save. Zero keeps them until deleted.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		data: make(map[string]entry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) live(e entry) bool {
	return e.expires.IsZero() || s.now().Before(e.expires)
}

// Save keeps a copy of sc; later changes by the caller do not leak in.
func (s *Store) Save(ctx context.Context, sessionID string, sc *domain.SessionContext) error {
	e := entry{sc: sc.Clone()}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.data[sessionID] = e
	s.mu.Unlock()
	return nil
}

// Load returns a copy, or domain.ErrSessionNotFound for unknown or expired ids.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.SessionContext, error) {
	s.mu.RLock()
	e, ok := s.data[sessionID]
	s.mu.RUnlock()

	if !ok || !s.live(e) {
		return nil, domain.ErrSessionNotFound
	}
	return e.sc.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.data, sessionID)
	s.mu.Unlock()
	return nil
}

// List returns live session ids, sorted. Expired entries are pruned on the way.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.data))
	for id, e := range s.data {
		if !s.live(e) {
			delete(s.data, id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
