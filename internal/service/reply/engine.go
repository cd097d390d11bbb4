// Package reply produces assistant replies as byte streams.
package reply

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/sniprx/assistant/backend/internal/model/chat"
)

// Mode names the provider that produced a stream.
type Mode string

const (
	ModeOpenAI Mode = "openai"
	ModeArk    Mode = "ark"
	ModeGemini Mode = "gemini"
	ModeMock   Mode = "mock"
)

// Stream is a reply in flight. Body must be closed by the consumer.
type Stream struct {
	Mode        Mode
	ContentType string
	Body        io.ReadCloser
}

// Provider turns a conversation into a streamed body.
type Provider interface {
	Mode() Mode
	ContentType() string
	Stream(ctx context.Context, messages []chat.Message) (io.ReadCloser, error)
}

// Engine picks the configured provider and falls back to the mock stream per request when the
// provider has nothing to stream.
type Engine struct {
	primary Provider
	mock    *MockProvider
}

// NewEngine builds an engine. primary may be nil, in which case every reply is mocked.
func NewEngine(primary Provider, mock *MockProvider) *Engine {
	if mock == nil {
		mock = NewMockProvider(0, 0)
	}
	return &Engine{primary: primary, mock: mock}
}

// Mode reports the provider selected at startup.
func (e *Engine) Mode() Mode {
	if e.primary == nil {
		return ModeMock
	}
	return e.primary.Mode()
}

// Reply streams an answer to messages. It only fails if the mock stream cannot be built.
func (e *Engine) Reply(ctx context.Context, messages []chat.Message) (*Stream, error) {
	if e.primary != nil {
		body, err := e.primary.Stream(ctx, messages)
		if err == nil {
			return &Stream{Mode: e.primary.Mode(), ContentType: e.primary.ContentType(), Body: body}, nil
		}
		log.Warn().Err(err).Str("provider", string(e.primary.Mode())).Msg("provider returned no stream, falling back to mock")
	}

	body, err := e.mock.Stream(ctx, messages)
	if err != nil {
		return nil, err
	}
	return &Stream{Mode: ModeMock, ContentType: e.mock.ContentType(), Body: body}, nil
}
