// Package llm hides the streaming chat model behind a provider-neutral
// interface.
package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trial-chat/internal/config"
	"github.com/sells-group/trial-chat/internal/model"
	"github.com/sells-group/trial-chat/pkg/anthropic"
	"github.com/sells-group/trial-chat/pkg/openrouter"
)

// Provider names accepted by New.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
)

// ErrMissingCredential is returned when the configured provider has no API key.
var ErrMissingCredential = eris.New("llm: API key not configured")

// Request is one streaming completion request. System is sent separately
// from the conversation history.
type Request struct {
	System      string
	Messages    []model.ChatMessage
	Model       string
	MaxTokens   int
	Temperature float64
}

// TokenStream yields generated text fragments in order. Next returns false
// when the stream ends; Err then reports why, or nil on normal completion.
type TokenStream interface {
	Next() bool
	Text() string
	Err() error
	Close() error
}

// Provider starts streaming completions.
type Provider interface {
	Stream(ctx context.Context, req Request) (TokenStream, error)
}

// New builds the provider selected by cfg.Provider.
func New(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "", ProviderAnthropic:
		if cfg.AnthropicKey == "" {
			return nil, ErrMissingCredential
		}
		var opts []anthropic.Option
		if cfg.AnthropicBaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.AnthropicBaseURL))
		}
		return NewAnthropic(anthropic.NewClient(cfg.AnthropicKey, opts...)), nil
	case ProviderOpenRouter:
		if cfg.OpenRouterKey == "" {
			return nil, ErrMissingCredential
		}
		var opts []openrouter.Option
		if cfg.OpenRouterBaseURL != "" {
			opts = append(opts, openrouter.WithBaseURL(cfg.OpenRouterBaseURL))
		}
		return NewOpenRouter(openrouter.NewClient(cfg.OpenRouterKey, opts...)), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// Unavailable returns a Provider whose every Stream call fails with err.
// It lets a server start without credentials and report the problem per
// request.
func Unavailable(err error) Provider {
	return unavailable{err: err}
}

type unavailable struct{ err error }

func (u unavailable) Stream(context.Context, Request) (TokenStream, error) {
	return nil, u.err
}
