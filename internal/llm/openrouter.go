package llm

import (
	"context"

	"github.com/sells-group/trial-chat/pkg/openrouter"
)

// OpenRouter adapts the OpenRouter chat-completions client to Provider.
type OpenRouter struct {
	client openrouter.Client
}

// NewOpenRouter wraps client.
func NewOpenRouter(client openrouter.Client) *OpenRouter {
	return &OpenRouter{client: client}
}

// Stream implements Provider. The system prompt travels as the first message.
func (o *OpenRouter) Stream(ctx context.Context, req Request) (TokenStream, error) {
	msgs := make([]openrouter.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openrouter.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openrouter.Message{Role: string(m.Role), Content: m.Content})
	}

	return o.client.StreamChat(ctx, openrouter.ChatRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
}
