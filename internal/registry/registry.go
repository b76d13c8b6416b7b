// Package registry decides how each call site talks to the trial registry.
// The search endpoint sees registry failures; the chat turn never does.
package registry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/trial-chat/internal/metrics"
	"github.com/sells-group/trial-chat/internal/model"
	"github.com/sells-group/trial-chat/internal/resilience"
	"github.com/sells-group/trial-chat/pkg/clinicaltrials"
)

// Searcher finds trials for a set of conditions.
type Searcher interface {
	Search(ctx context.Context, params clinicaltrials.SearchParams) ([]model.Trial, error)
}

// Call sites recorded on search metrics.
const (
	SiteChat     = "chat"
	SiteEndpoint = "endpoint"
	SiteCLI      = "cli"
)

// Breaker guards a Searcher with a circuit breaker.
type Breaker struct {
	next Searcher
	cb   *resilience.Breaker
}

// NewBreaker wraps next in a circuit breaker built from cfg.
func NewBreaker(next Searcher, cfg resilience.Config) *Breaker {
	if cfg.OnChange == nil {
		cfg.OnChange = func(from, to resilience.State) {
			zap.L().Warn("registry: circuit state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}
	return &Breaker{next: next, cb: resilience.New(cfg)}
}

// Search implements Searcher.
func (b *Breaker) Search(ctx context.Context, params clinicaltrials.SearchParams) ([]model.Trial, error) {
	return resilience.Call(ctx, b.cb, func(ctx context.Context) ([]model.Trial, error) {
		return b.next.Search(ctx, params)
	})
}

// State reports the breaker's current state.
func (b *Breaker) State() resilience.State {
	return b.cb.State()
}

// Instrumented records outcome and latency of every search for one call site.
type Instrumented struct {
	next    Searcher
	site    string
	metrics *metrics.Metrics
}

// NewInstrumented wraps next so its searches are counted under site.
// A nil m disables recording.
func NewInstrumented(next Searcher, site string, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, site: site, metrics: m}
}

// Search implements Searcher.
func (s *Instrumented) Search(ctx context.Context, params clinicaltrials.SearchParams) ([]model.Trial, error) {
	start := time.Now()
	trials, err := s.next.Search(ctx, params)
	s.metrics.ObserveSearch(s.site, err, time.Since(start))
	return trials, err
}

// Fallback never fails: when the wrapped Searcher errors it serves the
// fixed representative trials instead.
type Fallback struct {
	next    Searcher
	metrics *metrics.Metrics
}

// NewFallback wraps next with the fallback policy.
func NewFallback(next Searcher, m *metrics.Metrics) *Fallback {
	return &Fallback{next: next, metrics: m}
}

// Search implements Searcher. The returned error is always nil unless ctx
// was canceled by the caller.
func (f *Fallback) Search(ctx context.Context, params clinicaltrials.SearchParams) ([]model.Trial, error) {
	trials, err := f.next.Search(ctx, params)
	if err == nil {
		return trials, nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}

	zap.L().Warn("registry: search failed, serving fallback trials",
		zap.Strings("conditions", params.Conditions),
		zap.Error(err),
	)
	f.metrics.IncFallback()

	fallback := clinicaltrials.FallbackTrials()
	if params.MaxResults > 0 && len(fallback) > params.MaxResults {
		fallback = fallback[:params.MaxResults]
	}
	return fallback, nil
}
