package sse

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/sells-group/trial-chat/internal/model"
)

// wireLine is a decoded `data:` payload. Fields stay raw so a mistyped
// field only drops that field, not the whole line.
type wireLine struct {
	Content       json.RawMessage `json:"content"`
	ExtractedData json.RawMessage `json:"extractedData"`
	Trials        json.RawMessage `json:"trials"`
}

// MaxLineBytes bounds a single stream line. A longer line is dropped like
// a malformed one.
const MaxLineBytes = 1 << 20

// Processor incrementally demultiplexes chat stream bytes into events.
// A partial trailing line is held until the next chunk completes it, so
// events split across network reads are not lost. The zero value is ready
// to use; a Processor is not safe for concurrent use.
type Processor struct {
	pending []byte
	// discarding is set while skipping the rest of an oversized line.
	discarding bool
}

// Feed consumes one chunk and returns the events from every line it
// completes, in arrival order. Malformed lines are skipped silently.
func (p *Processor) Feed(chunk []byte) []Event {
	if p.discarding {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			return nil
		}
		chunk = chunk[i+1:]
		p.discarding = false
	}
	p.pending = append(p.pending, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(p.pending, '\n')
		if i < 0 {
			break
		}
		if i <= MaxLineBytes {
			events = append(events, ParseLine(string(p.pending[:i]))...)
		}
		p.pending = p.pending[i+1:]
	}
	switch {
	case len(p.pending) > MaxLineBytes:
		p.pending = nil
		p.discarding = true
	case len(p.pending) == 0:
		p.pending = nil
	}
	return events
}

// Flush processes a final line that arrived without a trailing newline.
func (p *Processor) Flush() []Event {
	p.discarding = false
	if len(p.pending) == 0 {
		return nil
	}
	line := string(p.pending)
	p.pending = nil
	return ParseLine(line)
}

// ParseLine decodes one stream line. Lines without the `data: ` prefix,
// the [DONE] sentinel, and anything that is not a JSON object yield no
// events. A line may yield text, extraction and trials events together,
// in that order.
func ParseLine(line string) []Event {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return nil
	}
	data := line[len(dataPrefix):]
	if strings.TrimSpace(data) == doneSentinel {
		return nil
	}

	var wl wireLine
	if err := json.Unmarshal([]byte(data), &wl); err != nil {
		return nil
	}

	var events []Event
	if len(wl.Content) > 0 {
		var s string
		if json.Unmarshal(wl.Content, &s) == nil && s != "" {
			events = append(events, Text(s))
		}
	}
	if present(wl.ExtractedData) {
		var e model.ExtractedEntities
		if json.Unmarshal(wl.ExtractedData, &e) == nil {
			events = append(events, Extraction(e))
		}
	}
	if present(wl.Trials) && bytes.HasPrefix(bytes.TrimSpace(wl.Trials), []byte("[")) {
		var trials []model.TrialSummary
		if json.Unmarshal(wl.Trials, &trials) == nil {
			events = append(events, Trials(trials))
		}
	}
	return events
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
