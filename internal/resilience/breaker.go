package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when a call is short-circuited by an open breaker.
var ErrBreakerOpen = errors.New("circuit breaker open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// FailureThreshold consecutive failures inside Window open the breaker.
	FailureThreshold int
	Window           time.Duration
	CoolDown         time.Duration
}

// DefaultBreakerConfig mirrors the voice backend defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		CoolDown:         30 * time.Second,
	}
}

// StateChangeFunc observes breaker transitions.
type StateChangeFunc func(name string, from, to State)

// Breaker is a per-operation circuit breaker.
//
// Closed -> Open after FailureThreshold consecutive failures within Window.
// Open -> HalfOpen once CoolDown has elapsed; exactly one trial call is let through.
// HalfOpen -> Closed on trial success, -> Open on trial failure.
type Breaker struct {
	name     string
	cfg      BreakerConfig
	now      func() time.Time
	onChange StateChangeFunc

	mu            sync.Mutex
	state         State
	failures      int
	runStartedAt  time.Time
	openedAt      time.Time
	trialInFlight bool
	// generation advances on every open and close.
	generation uint64
}

// NewBreaker builds a closed breaker.
func NewBreaker(name string, cfg BreakerConfig, onChange StateChangeFunc) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = def.CoolDown
	}
	return &Breaker{
		name:     name,
		cfg:      cfg,
		now:      time.Now,
		onChange: onChange,
	}
}

// Name returns the guarded operation name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, promoting Open to HalfOpen when the cool-down has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.CoolDown {
		return StateHalfOpen
	}
	return b.state
}

// Permit is the reservation handed out by Allow. Its verdict is reported back
// through Success, Failure or Release.
type Permit struct {
	generation uint64
	trial      bool
}

// Allow reserves permission for one call. Every successful Allow must be
// followed by exactly one of Success, Failure or Release with the same Permit.
func (b *Breaker) Allow() (Permit, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.CoolDown {
			return Permit{}, ErrBreakerOpen
		}
		b.transition(StateHalfOpen)
		b.trialInFlight = true
		return Permit{generation: b.generation, trial: true}, nil
	case StateHalfOpen:
		if b.trialInFlight {
			return Permit{}, ErrBreakerOpen
		}
		b.trialInFlight = true
		return Permit{generation: b.generation, trial: true}, nil
	}
	return Permit{generation: b.generation}, nil
}

// Success records a healthy call. Verdicts of permits issued before the last
// open or close are ignored.
func (b *Breaker) Success(p Permit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.current(p) {
		return
	}

	b.failures = 0
	b.runStartedAt = time.Time{}
	if b.state == StateHalfOpen {
		b.trialInFlight = false
		b.close()
	}
}

// Failure records a failed call.
func (b *Breaker) Failure(p Permit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.current(p) {
		return
	}

	now := b.now()
	switch b.state {
	case StateHalfOpen:
		b.trialInFlight = false
		b.open(now)
	case StateClosed:
		if b.failures == 0 || now.Sub(b.runStartedAt) > b.cfg.Window {
			b.failures = 0
			b.runStartedAt = now
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open(now)
		}
	}
}

// Release gives back a reservation without a verdict, e.g. when the caller
// abandoned the call. A half-open breaker lets the next call be the trial instead.
func (b *Breaker) Release(p Permit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current(p) && b.state == StateHalfOpen {
		b.trialInFlight = false
	}
}

// current reports whether p may still move the breaker. Only the trial
// decides a half-open breaker.
func (b *Breaker) current(p Permit) bool {
	if p.generation != b.generation {
		return false
	}
	return p.trial == (b.state != StateClosed)
}

func (b *Breaker) close() {
	b.generation++
	b.transition(StateClosed)
}

func (b *Breaker) open(now time.Time) {
	b.generation++
	b.failures = 0
	b.runStartedAt = time.Time{}
	b.openedAt = now
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
