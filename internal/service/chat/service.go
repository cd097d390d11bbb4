package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sniprx/assistant/backend/internal/analysis/strategy"
	"github.com/sniprx/assistant/backend/internal/model/chat"
	"github.com/sniprx/assistant/backend/internal/service/reply"
	"github.com/sniprx/assistant/backend/internal/store"
)

var (
	ErrSessionIDRequired = errors.New("id required")
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidMessage    = errors.New("invalid message")
)

// Replier is the part of the reply engine the service needs.
type Replier interface {
	Reply(ctx context.Context, messages []chat.Message) (*reply.Stream, error)
}

// Service manages session lifecycle and drives chat replies.
type Service struct {
	store   store.Store
	replier Replier
}

// NewService wires the session store and reply engine.
func NewService(st store.Store, replier Replier) *Service {
	return &Service{store: st, replier: replier}
}

// CreateSession allocates a fresh id and stores an empty conversation under it.
func (s *Service) CreateSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	createdAt := chat.NowMillis()
	empty := []chat.Message{}

	if _, err := s.store.Save(ctx, id, chat.Patch{CreatedAt: &createdAt, Messages: &empty}); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	log.Debug().Str("session", id).Msg("session created")
	return id, nil
}

// GetSession returns the stored record.
func (s *Service) GetSession(ctx context.Context, id string) (chat.Session, error) {
	if id == "" {
		return chat.Session{}, ErrSessionIDRequired
	}
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return chat.Session{}, err
	}
	if session == nil {
		return chat.Session{}, ErrSessionNotFound
	}
	return *session, nil
}

// UpdateSession sets the name when non-empty and appends messages to the stored history in one
// atomic store update. A missing session is created with only the supplied fields.
func (s *Service) UpdateSession(ctx context.Context, id string, name string, messages []chat.Message) error {
	if id == "" {
		return ErrSessionIDRequired
	}
	if err := validateMessages(messages); err != nil {
		return err
	}

	_, err := s.store.Update(ctx, id, func(existing *chat.Session) (chat.Patch, error) {
		var patch chat.Patch
		if name != "" {
			patch.Name = &name
		}
		if len(messages) > 0 || existing == nil {
			merged := appendHistory(existing, messages)
			patch.Messages = &merged
		}
		return patch, nil
	})
	return err
}

// DeleteSession removes id whether or not it exists.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return ErrSessionIDRequired
	}
	return s.store.Delete(ctx, id)
}

// AppendMessages adds messages to the end of the session history.
func (s *Service) AppendMessages(ctx context.Context, id string, messages []chat.Message) error {
	return s.UpdateSession(ctx, id, "", messages)
}

// Chat persists the incoming turns when sessionID is set and then starts a reply. The reply
// itself is not written back to the session.
func (s *Service) Chat(ctx context.Context, sessionID string, messages []chat.Message) (*reply.Stream, error) {
	if err := validateMessages(messages); err != nil {
		return nil, err
	}

	if sessionID != "" {
		if err := s.AppendMessages(ctx, sessionID, messages); err != nil {
			return nil, fmt.Errorf("persist chat messages: %w", err)
		}
	}

	stream, err := s.replier.Reply(ctx, messages)
	if err != nil {
		return nil, err
	}

	topic := strategy.TopicDefault
	if len(messages) > 0 {
		topic = strategy.ServerRules.Topic(messages[len(messages)-1].Content)
	}
	log.Info().
		Str("session", sessionID).
		Str("mode", string(stream.Mode)).
		Str("topic", topic).
		Int("history", len(messages)).
		Msg("chat reply started")
	return stream, nil
}

func validateMessages(messages []chat.Message) error {
	for i, m := range messages {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: message %d has role %q", ErrInvalidMessage, i, m.Role)
		}
	}
	return nil
}

func appendHistory(existing *chat.Session, messages []chat.Message) []chat.Message {
	var history []chat.Message
	if existing != nil {
		history = existing.Messages
	}
	merged := make([]chat.Message, 0, len(history)+len(messages))
	merged = append(merged, history...)
	return append(merged, messages...)
}
