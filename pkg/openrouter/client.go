// Package openrouter streams chat completions from OpenRouter.
package openrouter

import (
	"context"
	"errors"
	"io"
	"net/http"

	or "github.com/revrost/go-openrouter"
	"github.com/rotisserie/eris"
)

// Client defines the OpenRouter operations used by the chat service.
type Client interface {
	StreamChat(ctx context.Context, req ChatRequest) (TextStream, error)
}

// TextStream yields text deltas in arrival order.
type TextStream interface {
	Next() bool
	Text() string
	Err() error
	Close() error
}

// Message is a single chat message. Role is "system", "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// ChatRequest is our own request type for StreamChat.
type ChatRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// Option configures the client.
type Option func(*or.ClientConfig)

// WithBaseURL overrides the API base URL (including the /api/v1 path).
func WithBaseURL(u string) Option {
	return func(c *or.ClientConfig) { c.BaseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *or.ClientConfig) { c.HTTPClient = hc }
}

type client struct {
	api *or.Client
}

// NewClient creates an OpenRouter client.
func NewClient(apiKey string, opts ...Option) Client {
	cfg := or.DefaultConfig(apiKey)
	for _, o := range opts {
		o(cfg)
	}
	return &client{api: or.NewClientWithConfig(*cfg)}
}

func (c *client) StreamChat(ctx context.Context, req ChatRequest) (TextStream, error) {
	msgs := make([]or.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = or.ChatCompletionMessage{
			Role:    m.Role,
			Content: or.Content{Text: m.Content},
		}
	}

	stream, err := c.api.CreateChatCompletionStream(ctx, or.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "openrouter: create stream")
	}
	return &textStream{stream: stream}, nil
}

type textStream struct {
	stream *or.ChatCompletionStream
	text   string
	err    error
	done   bool
}

func (s *textStream) Next() bool {
	for !s.done {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			break
		}
		if err != nil {
			s.err = eris.Wrap(err, "openrouter: receive")
			s.done = true
			break
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		s.text = resp.Choices[0].Delta.Content
		return true
	}
	s.text = ""
	return false
}

func (s *textStream) Text() string { return s.text }

func (s *textStream) Err() error { return s.err }

func (s *textStream) Close() error {
	s.stream.Close()
	return nil
}
