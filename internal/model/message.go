package model

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a role the chat endpoint accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ChatMessage is the wire form of one turn in the history sent to /api/chat.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message is one turn of a client-side conversation. Only the last message
// of a conversation is ever mutated, and only while it streams.
type Message struct {
	ID            string             `json:"id"`
	Role          Role               `json:"role"`
	Content       string             `json:"content"`
	ExtractedData *ExtractedEntities `json:"extractedData,omitempty"`
	Trials        []TrialSummary     `json:"trials,omitempty"`
}

// Wire returns the message as sent to the server.
func (m Message) Wire() ChatMessage {
	return ChatMessage{Role: m.Role, Content: m.Content}
}
