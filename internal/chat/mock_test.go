package chat

import (
	"context"
	"errors"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/trial-chat/internal/llm"
	"github.com/sells-group/trial-chat/internal/model"
	"github.com/sells-group/trial-chat/internal/sse"
	"github.com/sells-group/trial-chat/pkg/clinicaltrials"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Stream(ctx context.Context, req llm.Request) (llm.TokenStream, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(llm.TokenStream), args.Error(1)
}

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, params clinicaltrials.SearchParams) ([]model.Trial, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Trial), args.Error(1)
}

// chunkStream replays fixed chunks, then fails with err if set.
type chunkStream struct {
	chunks []string
	err    error
	i      int
	closed bool
}

func (s *chunkStream) Next() bool {
	if s.i >= len(s.chunks) {
		return false
	}
	s.i++
	return true
}

func (s *chunkStream) Text() string { return s.chunks[s.i-1] }

func (s *chunkStream) Err() error {
	if s.i >= len(s.chunks) {
		return s.err
	}
	return nil
}

func (s *chunkStream) Close() error {
	s.closed = true
	return nil
}

// recorder is an Emitter that keeps every event.
type recorder struct {
	events  []sse.Event
	failOn  int
	sendErr error
}

func (r *recorder) Send(events ...sse.Event) error {
	for _, ev := range events {
		if r.sendErr != nil && len(r.events) == r.failOn {
			return r.sendErr
		}
		r.events = append(r.events, ev)
	}
	return nil
}

func (r *recorder) kinds() []sse.Kind {
	out := make([]sse.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// flowKinds is kinds with each run of adjacent text events folded into one.
func (r *recorder) flowKinds() []sse.Kind {
	var out []sse.Kind
	for _, ev := range r.events {
		if ev.Kind == sse.KindText && len(out) > 0 && out[len(out)-1] == sse.KindText {
			continue
		}
		out = append(out, ev.Kind)
	}
	return out
}

// first returns the first event of kind k.
func (r *recorder) first(k sse.Kind) (sse.Event, bool) {
	for _, ev := range r.events {
		if ev.Kind == k {
			return ev, true
		}
	}
	return sse.Event{}, false
}

func (r *recorder) text() string {
	var s string
	for _, ev := range r.events {
		if ev.Kind == sse.KindText {
			s += ev.Text
		}
	}
	return s
}

var errClientGone = errors.New("write: broken pipe")
