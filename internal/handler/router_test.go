package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sniprx/assistant/backend/internal/analysis/strategy"
	chatService "github.com/sniprx/assistant/backend/internal/service/chat"
	"github.com/sniprx/assistant/backend/internal/service/reply"
	"github.com/sniprx/assistant/backend/internal/store"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := store.NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	svc := chatService.NewService(st, reply.NewEngine(nil, reply.NewMockProvider(8, time.Millisecond)))
	srv := httptest.NewServer(NewRouter(svc, Info{Mode: "mock", Store: "file"}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","mode":"mock","store":"file"}`, string(body))
}

func TestChatOverRealConnection(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Post(srv.URL+"/api/chat", "application/json",
		strings.NewReader(`{"messages":[{"role":"user","content":"Explain MMXM"}]}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, strategy.ServerRules[0].Reply, string(body))
}

func TestSessionRoutesMounted(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/api/assistant")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
