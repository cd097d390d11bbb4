package chat

import "time"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one the assistant accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one turn of a conversation. Time is a display string, not a parsed timestamp.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Time    string `json:"time,omitempty"`
}

// DisplayTime formats t the way the widget labels its bubbles.
func DisplayTime(t time.Time) string {
	return t.Format("15:04")
}
