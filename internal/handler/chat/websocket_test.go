package chat

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sniprx/assistant/backend/internal/analysis/strategy"
	"github.com/sniprx/assistant/backend/internal/model/chat"
	chatService "github.com/sniprx/assistant/backend/internal/service/chat"
	"github.com/sniprx/assistant/backend/internal/service/reply"
	"github.com/sniprx/assistant/backend/internal/store"
)

func dialChat(t *testing.T) *websocket.Conn {
	t.Helper()
	r, _ := setupRouter(t)
	return dialRouter(t, r)
}

func dialRouter(t *testing.T, r *chi.Mux) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebSocketChatStreamsChunks(t *testing.T) {
	conn := dialChat(t)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "chat",
		"data": map[string]any{"messages": []map[string]string{{"role": "user", "content": "OTE levels?"}}},
	}))

	var start outgoingMessage
	require.NoError(t, conn.ReadJSON(&start))
	assert.Equal(t, "start", start.Type)
	assert.Equal(t, "mock", start.Mode)

	var text strings.Builder
	chunks := 0
	for {
		var msg outgoingMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "end" {
			break
		}
		require.Equal(t, "chunk", msg.Type)
		text.WriteString(msg.Data)
		chunks++
	}

	want := strategy.ServerRules[2].Reply
	assert.Equal(t, want, text.String())
	assert.Equal(t, (len([]rune(want))+7)/8, chunks)
}

func TestWebSocketRejectsBadPayload(t *testing.T) {
	conn := dialChat(t)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat", "data": map[string]any{"sessionId": "x"}}))

	var msg outgoingMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "Invalid request", msg.Data)
}

func TestWebSocketPingAndUnknown(t *testing.T) {
	conn := dialChat(t)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var msg outgoingMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
}

// pieceReader returns one piece per Read, like an upstream that flushes mid-rune.
type pieceReader struct {
	pieces [][]byte
}

func (p *pieceReader) Read(b []byte) (int, error) {
	if len(p.pieces) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.pieces[0])
	p.pieces[0] = p.pieces[0][n:]
	if len(p.pieces[0]) == 0 {
		p.pieces = p.pieces[1:]
	}
	return n, nil
}

func (p *pieceReader) Close() error { return nil }

type splitReplier struct {
	pieces [][]byte
}

func (r splitReplier) Reply(context.Context, []chat.Message) (*reply.Stream, error) {
	return &reply.Stream{
		Mode:        reply.ModeOpenAI,
		ContentType: "text/event-stream",
		Body:        &pieceReader{pieces: r.pieces},
	}, nil
}

func TestWebSocketKeepsRunesSplitAcrossReads(t *testing.T) {
	frame := []byte("data: {\"content\":\"é\"}\n\n")
	cut := strings.IndexByte(string(frame), 0xC3) + 1

	st := store.NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	svc := chatService.NewService(st, splitReplier{pieces: [][]byte{frame[:cut], frame[cut:]}})
	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	conn := dialRouter(t, r)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "chat",
		"data": map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}},
	}))

	var start outgoingMessage
	require.NoError(t, conn.ReadJSON(&start))
	assert.Equal(t, "openai", start.Mode)

	var text strings.Builder
	for {
		var msg outgoingMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "end" {
			break
		}
		require.Equal(t, "chunk", msg.Type)
		assert.NotContains(t, msg.Data, "\uFFFD")
		text.WriteString(msg.Data)
	}
	assert.Equal(t, string(frame), text.String())
}

func TestWebSocketFlushesTruncatedTail(t *testing.T) {
	dash := []byte("—")

	st := store.NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	svc := chatService.NewService(st, splitReplier{pieces: [][]byte{append([]byte("ok "), dash[:1]...)}})
	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	conn := dialRouter(t, r)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "chat",
		"data": map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}},
	}))

	var types []string
	for {
		var msg outgoingMessage
		require.NoError(t, conn.ReadJSON(&msg))
		types = append(types, msg.Type)
		if msg.Type == "end" {
			break
		}
	}
	assert.Equal(t, []string{"start", "chunk", "chunk", "end"}, types)
}
