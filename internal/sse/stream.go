package sse

import (
	"context"
	"errors"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trial-chat/internal/model"
)

const readChunkSize = 4096

// Subscription delivers the events of one stream on a channel. The channel
// is closed when the reader is exhausted, fails, or the context ends; Err
// is valid after that.
type Subscription struct {
	events chan Event
	err    error
}

// Events returns the receive side of the event channel.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Err reports why the stream ended: nil on a clean EOF, the read error, or
// the context error. Only call it after Events is closed.
func (s *Subscription) Err() error {
	return s.err
}

// Stream reads r until EOF in a single goroutine, processing each chunk
// before requesting the next, and publishes events in arrival order.
// Cancelling ctx stops the pump; closing r is left to the caller.
func Stream(ctx context.Context, r io.Reader) *Subscription {
	sub := &Subscription{events: make(chan Event)}

	go func() {
		defer close(sub.events)

		var p Processor
		buf := make([]byte, readChunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, ev := range p.Feed(buf[:n]) {
					if !sub.send(ctx, ev) {
						return
					}
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					sub.err = eris.Wrap(err, "sse: read stream")
					if ctxErr := ctx.Err(); ctxErr != nil {
						sub.err = ctxErr
					}
					return
				}
				for _, ev := range p.Flush() {
					if !sub.send(ctx, ev) {
						return
					}
				}
				return
			}
			if ctx.Err() != nil {
				sub.err = ctx.Err()
				return
			}
		}
	}()

	return sub
}

func (s *Subscription) send(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		s.err = ctx.Err()
		return false
	}
}

// Callbacks receives demultiplexed events. Nil callbacks are skipped.
type Callbacks struct {
	OnText       func(string)
	OnExtraction func(model.ExtractedEntities)
	OnTrials     func([]model.TrialSummary)
}

// Dispatch drains events into the matching callbacks and returns the
// concatenated text, in arrival order.
func Dispatch(events <-chan Event, cb Callbacks) string {
	var text []byte
	for ev := range events {
		switch ev.Kind {
		case KindText:
			text = append(text, ev.Text...)
			if cb.OnText != nil {
				cb.OnText(ev.Text)
			}
		case KindExtraction:
			if cb.OnExtraction != nil && ev.Extraction != nil {
				cb.OnExtraction(*ev.Extraction)
			}
		case KindTrials:
			if cb.OnTrials != nil {
				cb.OnTrials(ev.Trials)
			}
		}
	}
	return string(text)
}
