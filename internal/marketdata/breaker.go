package marketdata

import (
	"errors"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = 0 // live calls pass through
	BreakerOpen     BreakerState = 1 // live source backed off, calls rejected
	BreakerHalfOpen BreakerState = 2 // one trial call allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the live source is backed off.
var ErrCircuitOpen = errors.New("marketdata: live source circuit open")

// Breaker guards the live source. After maxFailures consecutive failures it
// opens and rejects calls for resetTimeout, then lets a single trial
// call through. A trial that reaches the source closes it; a failed one
// reopens it.
type Breaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	openedAt     time.Time
	inTrial      bool
	now          func() time.Time

	// OnStateChange is called under the breaker lock on every transition.
	OnStateChange func(from, to BreakerState)
}

// NewBreaker creates a breaker. maxFailures <= 0 disables tripping.
func NewBreaker(maxFailures int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        BreakerClosed,
		now:          time.Now,
	}
}

// Execute runs fn through the breaker.
// Returns ErrCircuitOpen without calling fn while the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.transition(BreakerHalfOpen)
		b.inTrial = true
	case BreakerHalfOpen:
		if b.inTrial {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.inTrial = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.inTrial = false

	if err != nil {
		if ignorable(err) {
			// The source answered, so a half-open breaker has recovered.
			if b.state == BreakerHalfOpen {
				b.transition(BreakerClosed)
			}
			return err
		}
		b.failures++
		if b.state == BreakerHalfOpen || (b.maxFailures > 0 && b.failures >= b.maxFailures) {
			b.transition(BreakerOpen)
			b.openedAt = b.now()
		}
		return err
	}

	if b.state != BreakerClosed {
		b.transition(BreakerClosed)
	}
	b.failures = 0
	return nil
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	if to == BreakerClosed {
		b.failures = 0
	}
	if b.OnStateChange != nil && from != to {
		b.OnStateChange(from, to)
	}
}

// ignorable errors say nothing about the live source's health: the symbol
// is simply unknown to it.
func ignorable(err error) bool {
	return errors.Is(err, ErrUnknownSymbol)
}
