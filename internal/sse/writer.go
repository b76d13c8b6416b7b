package sse

import (
	"net/http"

	"github.com/rotisserie/eris"
)

// Writer sends events on an HTTP response. Headers are committed lazily on
// the first Send so a handler can still answer with an error status when a
// turn fails before producing anything.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewWriter wraps w. Flushing is skipped when w does not support it.
func NewWriter(w http.ResponseWriter) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// Started reports whether any event has been written.
func (sw *Writer) Started() bool {
	return sw.started
}

// Start commits the event-stream headers if they have not been sent yet.
func (sw *Writer) Start() {
	if sw.started {
		return
	}
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	sw.w.WriteHeader(http.StatusOK)
	sw.started = true
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// Send writes events as one line and flushes it to the client.
func (sw *Writer) Send(events ...Event) error {
	line, err := Encode(events...)
	if err != nil {
		return err
	}

	sw.Start()
	if _, err := sw.w.Write(line); err != nil {
		return eris.Wrap(err, "sse: write event")
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}
