package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/maintenance-voice/internal/domain"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	entries sync.Map // id -> *domain.ConversationContext
	ids     *IDGenerator
	now     func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: NewIDGenerator(), now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, id string, c domain.ConversationContext) error {
	s.entries.Store(id, stamp(c, id, s.now()))
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.ConversationContext, error) {
	v, ok := s.entries.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*domain.ConversationContext).Clone(), nil
}

func (s *MemoryStore) NewID(callerID int64) string {
	return s.ids.Next(callerID)
}

// Sweep only deletes the exact value it judged stale; an entry refreshed by a
// concurrent Put survives.
func (s *MemoryStore) Sweep(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	cutoff := now.Add(-ttl)
	removed := 0
	var err error
	s.entries.Range(func(key, value any) bool {
		if err = ctx.Err(); err != nil {
			return false
		}
		c := value.(*domain.ConversationContext)
		if c.LastUpdated.Before(cutoff) && s.entries.CompareAndDelete(key, value) {
			removed++
		}
		return true
	})
	return removed, err
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n, nil
}
