// Package sse implements the chat event stream: `data: <json>` lines that
// interleave assistant text deltas with extraction and ranked-trial
// payloads.
package sse

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trial-chat/internal/model"
)

// Kind tags an Event.
type Kind int

const (
	KindText Kind = iota + 1
	KindExtraction
	KindTrials
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindExtraction:
		return "extraction"
	case KindTrials:
		return "trials"
	default:
		return "unknown"
	}
}

// Event is one demultiplexed item of the chat stream. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Event struct {
	Kind       Kind
	Text       string
	Extraction *model.ExtractedEntities
	Trials     []model.TrialSummary
}

// Text builds a text-delta event.
func Text(s string) Event {
	return Event{Kind: KindText, Text: s}
}

// Extraction builds an extraction event.
func Extraction(e model.ExtractedEntities) Event {
	return Event{Kind: KindExtraction, Extraction: &e}
}

// Trials builds a trials event. A nil slice is sent as an empty array.
func Trials(trials []model.TrialSummary) Event {
	if trials == nil {
		trials = []model.TrialSummary{}
	}
	return Event{Kind: KindTrials, Trials: trials}
}

const (
	dataPrefix = "data: "
	// doneSentinel is emitted by OpenAI-compatible upstreams; it is not JSON
	// and is skipped like any other unparseable line.
	doneSentinel = "[DONE]"
)

// Encode renders events as a single `data:` line terminated by a blank
// line. Several events of different kinds may share one line.
func Encode(events ...Event) ([]byte, error) {
	if len(events) == 0 {
		return nil, eris.New("sse: encode requires at least one event")
	}
	payload := make(map[string]any, len(events))
	for _, ev := range events {
		switch ev.Kind {
		case KindText:
			payload["content"] = ev.Text
		case KindExtraction:
			if ev.Extraction == nil {
				return nil, eris.New("sse: extraction event without payload")
			}
			payload["extractedData"] = ev.Extraction
		case KindTrials:
			trials := ev.Trials
			if trials == nil {
				trials = []model.TrialSummary{}
			}
			payload["trials"] = trials
		default:
			return nil, eris.Errorf("sse: unknown event kind %d", ev.Kind)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "sse: marshal payload")
	}
	line := make([]byte, 0, len(dataPrefix)+len(body)+2)
	line = append(line, dataPrefix...)
	line = append(line, body...)
	line = append(line, '\n', '\n')
	return line, nil
}
