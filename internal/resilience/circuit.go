// Package resilience guards calls to external services with a circuit
// breaker so a failing dependency is rejected fast instead of holding a
// chat turn open until its timeout.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// State is the position of a Breaker.
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
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling the service while the breaker is open
// or while its single recovery probe is still in flight.
var ErrOpen = eris.New("resilience: circuit open")

const (
	defaultThreshold = 5
	defaultCooldown  = 30 * time.Second
)

// Config tunes a Breaker. Zero values take the defaults.
type Config struct {
	// Threshold is the number of consecutive tripping failures that opens
	// the breaker.
	Threshold int
	// Cooldown is how long the breaker stays open before one probe call is
	// let through.
	Cooldown time.Duration
	// Trips decides which errors count against the service. Defaults to
	// IsTransient.
	Trips func(err error) bool
	// OnChange observes state transitions. It runs under the breaker lock.
	OnChange func(from, to State)
}

// FromConfig builds a Config from the registry settings.
func FromConfig(threshold, cooldownSecs int) Config {
	cfg := Config{Threshold: defaultThreshold, Cooldown: defaultCooldown}
	if threshold > 0 {
		cfg.Threshold = threshold
	}
	if cooldownSecs > 0 {
		cfg.Cooldown = time.Duration(cooldownSecs) * time.Second
	}
	return cfg
}

// Breaker counts consecutive failures of one service. It is safe for
// concurrent use.
type Breaker struct {
	cfg Config

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// New returns a closed Breaker.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Trips == nil {
		cfg.Trips = IsTransient
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Call runs fn unless the breaker rejects it. A context that is already
// done fails the call without touching the breaker.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	probe, err := b.acquire()
	if err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	b.settle(err, probe)
	return v, err
}

// State reports the current state. An open breaker whose cooldown has
// elapsed reports half-open, since the next call will probe.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the current run of consecutive tripping failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// acquire admits a call. probe is true for the one call allowed through
// after the cooldown.
func (b *Breaker) acquire() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrOpen
		}
		b.moveTo(StateHalfOpen)
	}
	if b.probing {
		return false, ErrOpen
	}
	b.probing = true
	return true, nil
}

func (b *Breaker) settle(err error, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tripped := err != nil && b.cfg.Trips(err)

	if probe {
		b.probing = false
		if errors.Is(err, context.Canceled) {
			// No verdict on the service; the next call probes again.
			return
		}
		if tripped {
			b.open()
			return
		}
		b.failures = 0
		b.moveTo(StateClosed)
		return
	}

	if b.state != StateClosed {
		return
	}
	if !tripped {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.cfg.Threshold {
		b.open()
	}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.moveTo(StateOpen)
}

func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnChange != nil {
		b.cfg.OnChange(from, to)
	}
}
