package reply

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sniprx/assistant/backend/internal/analysis/strategy"
	"github.com/sniprx/assistant/backend/internal/config"
	"github.com/sniprx/assistant/backend/internal/model/chat"
)

const upstreamBody = "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n"

func TestOpenAIProviderRelaysRawBody(t *testing.T) {
	var got completionRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, upstreamBody)
	}))
	defer upstream.Close()

	p := NewOpenAIProvider(config.OpenAIConfig{APIKey: "sk-test", BaseURL: upstream.URL, Model: "gpt-4o-mini"}, upstream.Client())
	body, err := p.Stream(context.Background(), []chat.Message{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello"},
		{Role: chat.RoleUser, Content: "risk?"},
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, upstreamBody, string(data))

	assert.True(t, got.Stream)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "assistant", got.Messages[1].Role)
}

func TestOpenAIProviderRejectsErrorStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	p := NewOpenAIProvider(config.OpenAIConfig{APIKey: "sk", BaseURL: upstream.URL}, upstream.Client())
	_, err := p.Stream(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoBody)
}

func TestEngineFallsBackToMockWhenUpstreamFails(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	engine := NewEngine(
		NewOpenAIProvider(config.OpenAIConfig{APIKey: "sk", BaseURL: upstream.URL}, upstream.Client()),
		NewMockProvider(8, time.Millisecond),
	)
	assert.Equal(t, ModeOpenAI, engine.Mode())

	stream, err := engine.Reply(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "Explain MMXM"}})
	require.NoError(t, err)
	defer stream.Body.Close()

	assert.Equal(t, ModeMock, stream.Mode)
	data, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	assert.Equal(t, strategy.ServerRules[0].Reply, string(data))
}

func TestEngineFallsBackWhenUpstreamUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	engine := NewEngine(NewOpenAIProvider(config.OpenAIConfig{APIKey: "sk", BaseURL: url}, nil), NewMockProvider(8, time.Millisecond))
	stream, err := engine.Reply(context.Background(), nil)
	require.NoError(t, err)
	defer stream.Body.Close()

	data, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	assert.Equal(t, strategy.Greeting, string(data))
}

func TestEngineWithoutProviderIsMock(t *testing.T) {
	engine := NewEngine(nil, nil)
	assert.Equal(t, ModeMock, engine.Mode())

	stream, err := engine.Reply(context.Background(), nil)
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, "text/plain; charset=utf-8", stream.ContentType)
}

func TestEngineUsesPrimaryStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, upstreamBody)
	}))
	defer upstream.Close()

	engine := NewEngine(NewOpenAIProvider(config.OpenAIConfig{APIKey: "sk", BaseURL: upstream.URL}, upstream.Client()), nil)
	stream, err := engine.Reply(context.Background(), nil)
	require.NoError(t, err)
	defer stream.Body.Close()

	assert.Equal(t, ModeOpenAI, stream.Mode)
	assert.Equal(t, "text/event-stream", stream.ContentType)
}
