package domain

import "time"

// Role tags the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a task conversation.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// NewMessage creates a timestamped message.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, At: time.Now().UTC()}
}

// Conversation is the ordered, append-only message history for one
// (task, run) pair. Ordering is total per key: the runtime serializes
// appends through a per-key lock, so Conversation itself stays plain data.
type Conversation struct {
	Messages []Message `json:"messages"`
}

// Append adds a message at the end of the history.
func (c *Conversation) Append(m Message) {
	c.Messages = append(c.Messages, m)
}

// History returns the messages in append order. The returned slice is a
// copy; mutating it does not affect the conversation.
func (c *Conversation) History() []Message {
	out := make([]Message, len(c.Messages))
	copy(out, c.Messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	return &Conversation{Messages: c.History()}
}
