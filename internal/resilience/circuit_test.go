package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOutage = errors.New("connection refused")

func fail(_ context.Context) (int, error)    { return 0, errOutage }
func succeed(_ context.Context) (int, error) { return 1, nil }

// clock is a manual time source for cooldown tests.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*Breaker, *clock) {
	b := New(cfg)
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b.now = c.now
	return b, c
}

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b := New(Config{})

	v, err := Call(context.Background(), b, succeed)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(Config{Threshold: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := Call(context.Background(), b, fail)
		assert.ErrorIs(t, err, errOutage)
	}
	assert.Equal(t, StateOpen, b.State())

	_, err := Call(context.Background(), b, func(context.Context) (int, error) {
		t.Error("should not be called while open")
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := New(Config{Threshold: 3})

	_, _ = Call(context.Background(), b, fail)
	_, _ = Call(context.Background(), b, fail)
	assert.Equal(t, 2, b.Failures())

	_, err := Call(context.Background(), b, succeed)
	require.NoError(t, err)
	assert.Zero(t, b.Failures())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ProbeAfterCooldown(t *testing.T) {
	var transitions []string
	b, c := newTestBreaker(Config{
		Threshold: 1,
		Cooldown:  10 * time.Second,
		OnChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_, _ = Call(context.Background(), b, fail)
	assert.Equal(t, StateOpen, b.State())

	c.advance(11 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	// A failed probe reopens and restarts the cooldown.
	_, _ = Call(context.Background(), b, fail)
	assert.Equal(t, StateOpen, b.State())
	_, err := Call(context.Background(), b, succeed)
	assert.ErrorIs(t, err, ErrOpen)

	c.advance(11 * time.Second)
	_, err = Call(context.Background(), b, succeed)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{
		"closed->open",
		"open->half-open",
		"half-open->open",
		"open->half-open",
		"half-open->closed",
	}, transitions)
}

func TestBreaker_SingleProbeInFlight(t *testing.T) {
	b, c := newTestBreaker(Config{Threshold: 1, Cooldown: time.Second})
	_, _ = Call(context.Background(), b, fail)
	c.advance(2 * time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Call(context.Background(), b, func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- err
	}()
	<-started

	_, err := Call(context.Background(), b, succeed)
	assert.ErrorIs(t, err, ErrOpen, "a second call must wait for the probe verdict")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())

	_, err = Call(context.Background(), b, succeed)
	assert.NoError(t, err)
}

func TestBreaker_CanceledProbeLeavesHalfOpen(t *testing.T) {
	b, c := newTestBreaker(Config{Threshold: 1, Cooldown: time.Second})
	_, _ = Call(context.Background(), b, fail)
	c.advance(2 * time.Second)

	_, err := Call(context.Background(), b, func(context.Context) (int, error) { return 0, context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateHalfOpen, b.State())

	_, err = Call(context.Background(), b, succeed)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_DoneContextSkipsCall(t *testing.T) {
	b := New(Config{Threshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Call(ctx, b, func(context.Context) (int, error) {
		t.Error("should not be called with a done context")
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, b.Failures())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	b := New(Config{Threshold: 1})

	badRequest := &statusErr{code: 400}
	for i := 0; i < 5; i++ {
		_, err := Call(context.Background(), b, func(context.Context) (int, error) { return 0, badRequest })
		assert.ErrorIs(t, err, badRequest)
	}
	assert.Equal(t, StateClosed, b.State())

	_, _ = Call(context.Background(), b, func(context.Context) (int, error) { return 0, &statusErr{code: 503} })
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_CustomTrips(t *testing.T) {
	b := New(Config{Threshold: 1, Trips: func(error) bool { return false }})
	_, _ = Call(context.Background(), b, fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ConcurrentAccess(t *testing.T) {
	b := New(Config{Threshold: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = Call(context.Background(), b, fail)
			} else {
				_, _ = Call(context.Background(), b, succeed)
			}
			_ = b.State()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, StateClosed, b.State())
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(0, 0)
	assert.Equal(t, 5, cfg.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Cooldown)

	cfg = FromConfig(2, 90)
	assert.Equal(t, 2, cfg.Threshold)
	assert.Equal(t, 90*time.Second, cfg.Cooldown)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return "status error" }
func (e *statusErr) HTTPStatus() int { return e.code }
