package llm

import (
	"context"

	"github.com/sells-group/trial-chat/pkg/anthropic"
)

// Anthropic adapts the Anthropic Messages client to Provider.
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic wraps client.
func NewAnthropic(client anthropic.Client) *Anthropic {
	return &Anthropic{client: client}
}

// Stream implements Provider. Request errors surface from the first Next.
func (a *Anthropic) Stream(ctx context.Context, req Request) (TokenStream, error) {
	msgs := make([]anthropic.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = anthropic.Message{Role: string(m.Role), Content: m.Content}
	}

	temp := req.Temperature
	areq := anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   int64(req.MaxTokens),
		Messages:    msgs,
		Temperature: &temp,
	}
	if req.System != "" {
		areq.System = anthropic.BuildCachedSystemBlocks(req.System)
	}
	return a.client.StreamMessage(ctx, areq), nil
}
