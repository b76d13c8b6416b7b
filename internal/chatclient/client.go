// Package chatclient talks to a running trial-chat server.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trial-chat/internal/model"
	"github.com/sells-group/trial-chat/internal/sse"
)

const maxErrorBody = 4096

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chatclient: server returned %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the server's response status.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// SearchRequest is the body of a direct trial search.
type SearchRequest struct {
	Age        *int     `json:"age,omitempty"`
	Conditions []string `json:"conditions"`
	Location   string   `json:"location,omitempty"`
}

// Client calls the chat and search endpoints.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a Client for baseURL. Chat responses stream for as long as the
// model talks, so the HTTP client has no overall timeout.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{},
	}
}

// Send posts the conversation and returns the reply's event stream. The
// response body is closed when the stream ends or ctx is canceled.
func (c *Client) Send(ctx context.Context, history []model.ChatMessage) (*sse.Subscription, error) {
	resp, err := c.post(ctx, "/api/chat", map[string]any{"messages": history}, "text/event-stream")
	if err != nil {
		return nil, err
	}
	return sse.Stream(ctx, closeWhenDone(ctx, resp.Body)), nil
}

// SearchTrials runs a direct ranked search.
func (c *Client) SearchTrials(ctx context.Context, req SearchRequest) ([]model.TrialSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := c.post(ctx, "/api/search-trials", req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	var out struct {
		Trials []model.TrialSummary `json:"trials"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "chatclient: decode search response")
	}
	if out.Trials == nil {
		out.Trials = []model.TrialSummary{}
	}
	return out.Trials, nil
}

func (c *Client) post(ctx context.Context, path string, body any, accept string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "chatclient: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "chatclient: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "chatclient: post %s", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close() //nolint:errcheck
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// selfClosingBody closes the response body on the first read error or when
// ctx ends, whichever comes first.
type selfClosingBody struct {
	rc   io.ReadCloser
	once sync.Once
	stop func() bool
}

func closeWhenDone(ctx context.Context, rc io.ReadCloser) io.Reader {
	b := &selfClosingBody{rc: rc}
	b.stop = context.AfterFunc(ctx, b.close)
	return b
}

func (b *selfClosingBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err != nil {
		b.stop()
		b.close()
	}
	return n, err
}

func (b *selfClosingBody) close() {
	b.once.Do(func() { _ = b.rc.Close() })
}
