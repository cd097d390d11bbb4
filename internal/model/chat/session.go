package chat

import "time"

// Session is a persisted conversation keyed by an opaque id.
type Session struct {
	ID        string    `json:"id,omitempty"`
	CreatedAt int64     `json:"createdAt,omitempty"`
	Name      string    `json:"name,omitempty"`
	Messages  []Message `json:"messages"`
}

// Patch carries the top-level fields to replace on save. Nil fields are left untouched.
type Patch struct {
	CreatedAt *int64
	Name      *string
	Messages  *[]Message
}

// Apply shallow-merges p into s.
func (p Patch) Apply(s *Session) {
	if p.CreatedAt != nil {
		s.CreatedAt = *p.CreatedAt
	}
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Messages != nil {
		s.Messages = append([]Message(nil), (*p.Messages)...)
	}
	if s.Messages == nil {
		s.Messages = []Message{}
	}
}

// NowMillis returns the creation timestamp format used by stored sessions.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Clone returns a deep copy of the session's message slice.
func (s Session) Clone() Session {
	out := s
	out.Messages = append(make([]Message, 0, len(s.Messages)), s.Messages...)
	return out
}
