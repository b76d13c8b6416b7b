// Package conversation keeps the client-side transcript of a chat session.
package conversation

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/trial-chat/internal/model"
	"github.com/sells-group/trial-chat/internal/sse"
)

// ErrNoAssistantMessage is returned by Apply when the transcript does not
// end with an assistant message.
var ErrNoAssistantMessage = eris.New("conversation: no assistant message in progress")

// Conversation is an ordered transcript. It is not safe for concurrent use.
type Conversation struct {
	messages []model.Message
}

// New returns an empty conversation.
func New() *Conversation {
	return &Conversation{}
}

// AppendUser adds a user message and returns it.
func (c *Conversation) AppendUser(text string) model.Message {
	m := model.Message{ID: uuid.NewString(), Role: model.RoleUser, Content: text}
	c.messages = append(c.messages, m)
	return m
}

// BeginAssistant adds an empty assistant message that Apply fills in.
func (c *Conversation) BeginAssistant() model.Message {
	m := model.Message{ID: uuid.NewString(), Role: model.RoleAssistant}
	c.messages = append(c.messages, m)
	return m
}

// Apply folds one stream event into the last message, which must be an
// assistant message. Text appends to the content; an extraction or trials
// event replaces the attached data.
func (c *Conversation) Apply(ev sse.Event) error {
	n := len(c.messages)
	if n == 0 || c.messages[n-1].Role != model.RoleAssistant {
		return ErrNoAssistantMessage
	}
	last := &c.messages[n-1]

	switch ev.Kind {
	case sse.KindText:
		last.Content += ev.Text
	case sse.KindExtraction:
		if ev.Extraction != nil {
			e := *ev.Extraction
			last.ExtractedData = &e
		}
	case sse.KindTrials:
		last.Trials = append([]model.TrialSummary(nil), ev.Trials...)
	default:
		return eris.Errorf("conversation: unknown event kind %d", ev.Kind)
	}
	return nil
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []model.Message {
	return append([]model.Message(nil), c.messages...)
}

// Last returns the most recent message.
func (c *Conversation) Last() (model.Message, bool) {
	if len(c.messages) == 0 {
		return model.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// History returns the wire form sent to the server. Assistant messages that
// never received text are left out.
func (c *Conversation) History() []model.ChatMessage {
	out := make([]model.ChatMessage, 0, len(c.messages))
	for _, m := range c.messages {
		if m.Role == model.RoleAssistant && strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m.Wire())
	}
	return out
}

// Clear drops every message.
func (c *Conversation) Clear() {
	c.messages = nil
}

// Save writes the transcript as JSON.
func (c *Conversation) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c.messages); err != nil {
		return eris.Wrap(err, "conversation: save")
	}
	return nil
}

// Load replaces the transcript with one written by Save.
func (c *Conversation) Load(r io.Reader) error {
	var msgs []model.Message
	if err := json.NewDecoder(r).Decode(&msgs); err != nil {
		return eris.Wrap(err, "conversation: load")
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return eris.Errorf("conversation: message %d has unknown role %q", i, m.Role)
		}
		if m.ID == "" {
			msgs[i].ID = uuid.NewString()
		}
	}
	c.messages = msgs
	return nil
}
