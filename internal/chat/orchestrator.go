// Package chat runs one conversational turn: it streams the model's reply,
// pulls extraction blocks out of it, and searches for trials when the
// assistant says it has enough information.
package chat

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trial-chat/internal/extract"
	"github.com/sells-group/trial-chat/internal/llm"
	"github.com/sells-group/trial-chat/internal/metrics"
	"github.com/sells-group/trial-chat/internal/model"
	"github.com/sells-group/trial-chat/internal/ranking"
	"github.com/sells-group/trial-chat/internal/registry"
	"github.com/sells-group/trial-chat/internal/sse"
	"github.com/sells-group/trial-chat/pkg/clinicaltrials"
)

// ErrEmptyHistory is returned when a turn has no messages to respond to.
var ErrEmptyHistory = eris.New("chat: conversation history is empty")

// Emitter receives the events of a turn in order.
type Emitter interface {
	Send(events ...sse.Event) error
}

// Settings are the per-turn model and search parameters.
type Settings struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// SearchLimit caps how many registry results are fetched for ranking.
	SearchLimit int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithParser replaces the default extraction parser.
func WithParser(p *extract.Parser) Option {
	return func(o *Orchestrator) { o.parser = p }
}

// WithMetrics records turn and extraction outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs chat turns. It holds no per-conversation state and is
// safe for concurrent use.
type Orchestrator struct {
	provider llm.Provider
	searcher registry.Searcher
	ranker   *ranking.Ranker
	parser   *extract.Parser
	metrics  *metrics.Metrics
	settings Settings
}

// New creates an Orchestrator. searcher is expected to apply the chat
// call site's fallback policy.
func New(provider llm.Provider, searcher registry.Searcher, ranker *ranking.Ranker, settings Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		searcher: searcher,
		ranker:   ranker,
		parser:   extract.NewParser(),
		settings: settings,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// turn tracks one RunTurn invocation.
type turn struct {
	out         Emitter
	started     bool
	searched    bool
	extractions int
}

func (t *turn) send(ev sse.Event) error {
	t.started = true
	return t.out.Send(ev)
}

// RunTurn streams the assistant's reply to history into out. Text is
// forwarded as it arrives except for json fenced blocks, which become
// extraction events. The first ready extraction that names a condition
// triggers one trial search for the turn.
//
// An error returned before any event was sent means nothing reached the
// client. Later errors end the stream early.
func (o *Orchestrator) RunTurn(ctx context.Context, history []model.ChatMessage, out Emitter) (err error) {
	start := time.Now()
	t := &turn{out: out}
	defer func() {
		o.metrics.IncChatTurn(err)
		zap.L().Info("chat: turn finished",
			zap.Int("messages", len(history)),
			zap.Int("extractions", t.extractions),
			zap.Bool("searched", t.searched),
			zap.Bool("streamed", t.started),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
	}()

	if len(history) == 0 {
		return ErrEmptyHistory
	}

	stream, err := o.provider.Stream(ctx, llm.Request{
		System:      llm.SystemPrompt,
		Messages:    history,
		Model:       o.settings.Model,
		MaxTokens:   o.settings.MaxTokens,
		Temperature: o.settings.Temperature,
	})
	if err != nil {
		return eris.Wrap(err, "chat: start stream")
	}
	defer stream.Close() //nolint:errcheck

	var filter fenceFilter
	for stream.Next() {
		if err := o.handle(ctx, t, filter.write(stream.Text())); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return eris.Wrap(err, "chat: read stream")
	}
	return o.handle(ctx, t, filter.flush())
}

func (o *Orchestrator) handle(ctx context.Context, t *turn, segs []segment) error {
	for _, seg := range segs {
		if !seg.block {
			if err := t.send(sse.Text(seg.text)); err != nil {
				return eris.Wrap(err, "chat: send text")
			}
			continue
		}
		if err := o.handleBlock(ctx, t, seg.text); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) handleBlock(ctx context.Context, t *turn, block string) error {
	res := o.parser.Parse(block)
	switch res.Status {
	case extract.StatusNotFound:
		if err := t.send(sse.Text(block)); err != nil {
			return eris.Wrap(err, "chat: send text")
		}
		return nil
	case extract.StatusInvalid:
		t.extractions++
		o.metrics.IncExtraction(false)
		zap.L().Warn("chat: ignoring invalid extraction block", zap.Error(res.Err))
		return nil
	}

	t.extractions++
	o.metrics.IncExtraction(true)
	entities := *res.Entities
	if err := t.send(sse.Extraction(entities)); err != nil {
		return eris.Wrap(err, "chat: send extraction")
	}

	if !entities.Searchable() {
		return nil
	}
	if t.searched {
		zap.L().Debug("chat: search already ran this turn, skipping")
		return nil
	}
	t.searched = true

	trials, err := o.searcher.Search(ctx, clinicaltrials.SearchParams{
		Conditions: entities.ConditionNames(),
		Age:        entities.Age,
		Location:   entities.Location,
		MaxResults: o.settings.SearchLimit,
	})
	if err != nil {
		return eris.Wrap(err, "chat: search trials")
	}

	ranked := o.ranker.Rank(trials, entities)
	if err := t.send(sse.Trials(model.Summaries(ranked))); err != nil {
		return eris.Wrap(err, "chat: send trials")
	}
	return nil
}

