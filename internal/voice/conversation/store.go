package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spec-kit/maintenance-voice/internal/domain"
)

// ErrNotFound is returned by Get when no context is stored under an id.
var ErrNotFound = errors.New("conversation not found")

// DefaultTTL is how long an idle conversation is retained.
const DefaultTTL = time.Hour

// Store keeps per-conversation dialogue state. Implementations return copies;
// callers never share a stored value.
type Store interface {
	// Put upserts the context under id and stamps LastUpdated. Last writer wins.
	Put(ctx context.Context, id string, c domain.ConversationContext) error
	// Get returns the stored context or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.ConversationContext, error)
	// NewID returns a fresh conversation id for the caller.
	NewID(callerID int64) string
	// Sweep removes contexts whose LastUpdated is older than now-ttl and
	// returns how many were removed.
	Sweep(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
	// Len reports the number of stored contexts.
	Len(ctx context.Context) (int, error)
}

// IDGenerator mints "<callerID>_<millis>" ids. The millisecond component is
// strictly increasing within the process, so two ids never collide even when
// minted in the same millisecond.
type IDGenerator struct {
	last atomic.Int64
	now  func() time.Time
}

// NewIDGenerator returns a generator backed by the wall clock.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next returns the next id for callerID.
func (g *IDGenerator) Next(callerID int64) string {
	return fmt.Sprintf("%d_%d", callerID, g.tick())
}

func (g *IDGenerator) tick() int64 {
	now := g.now().UnixMilli()
	for {
		prev := g.last.Load()
		next := now
		if next <= prev {
			next = prev + 1
		}
		if g.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}

func stamp(c domain.ConversationContext, id string, now time.Time) *domain.ConversationContext {
	out := c.Clone()
	out.ID = id
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.LastUpdated = now
	return out
}
