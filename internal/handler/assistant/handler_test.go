package assistant

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sniprx/assistant/backend/internal/model/chat"
	chatService "github.com/sniprx/assistant/backend/internal/service/chat"
	"github.com/sniprx/assistant/backend/internal/service/reply"
	"github.com/sniprx/assistant/backend/internal/store"
)

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()
	st := store.NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	svc := chatService.NewService(st, reply.NewEngine(nil, reply.NewMockProvider(8, time.Millisecond)))

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	resp := do(t, r, http.MethodPost, "/assistant", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var payload struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	require.NotEmpty(t, payload.ID)
	return payload.ID
}

func getSession(t *testing.T, r http.Handler, id string) chat.Session {
	t.Helper()
	resp := do(t, r, http.MethodGet, "/assistant?id="+id, "")
	require.Equal(t, http.StatusOK, resp.Code)

	var payload struct {
		Session chat.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	return payload.Session
}

func TestCreateThenGet(t *testing.T) {
	r := setupRouter(t)
	id := createSession(t, r)

	session := getSession(t, r, id)
	assert.NotNil(t, session.Messages)
	assert.Empty(t, session.Messages)
	assert.NotZero(t, session.CreatedAt)
}

func TestCreateReturnsDistinctIDs(t *testing.T) {
	r := setupRouter(t)
	assert.NotEqual(t, createSession(t, r), createSession(t, r))
}

func TestUpdateAppendsMessages(t *testing.T) {
	r := setupRouter(t)
	id := createSession(t, r)

	resp := do(t, r, http.MethodPost, "/assistant?id="+id, `{"messages":[{"role":"assistant","content":"welcome","time":"09:30"}]}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"ok":true}`, resp.Body.String())

	resp = do(t, r, http.MethodPost, "/assistant?id="+id, `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, resp.Code)

	session := getSession(t, r, id)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, chat.Message{Role: chat.RoleAssistant, Content: "welcome", Time: "09:30"}, session.Messages[0])
	assert.Equal(t, chat.Message{Role: chat.RoleUser, Content: "hi"}, session.Messages[1])
}

func TestUpdateName(t *testing.T) {
	r := setupRouter(t)
	id := createSession(t, r)

	resp := do(t, r, http.MethodPost, "/assistant?id="+id, `{"name":"London open"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	session := getSession(t, r, id)
	assert.Equal(t, "London open", session.Name)
	assert.Empty(t, session.Messages)
}

func TestUpdateRejectsMalformedBodies(t *testing.T) {
	r := setupRouter(t)
	id := createSession(t, r)

	for name, body := range map[string]string{
		"not json":           `{`,
		"empty":              ``,
		"array body":         `[]`,
		"messages not array": `{"messages":"hi"}`,
		"name not string":    `{"name":5}`,
		"bad role":           `{"messages":[{"role":"system","content":"x"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/assistant?id="+id, strings.NewReader(body))
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.JSONEq(t, `{"error":"bad body"}`, resp.Body.String())
		})
	}

	assert.Empty(t, getSession(t, r, id).Messages)
}

func TestGetRequiresID(t *testing.T) {
	r := setupRouter(t)
	resp := do(t, r, http.MethodGet, "/assistant", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.JSONEq(t, `{"error":"id required"}`, resp.Body.String())
}

func TestGetMissing(t *testing.T) {
	r := setupRouter(t)
	resp := do(t, r, http.MethodGet, "/assistant?id=nope", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.JSONEq(t, `{"error":"not found"}`, resp.Body.String())
}

func TestDelete(t *testing.T) {
	r := setupRouter(t)
	id := createSession(t, r)

	resp := do(t, r, http.MethodDelete, "/assistant?id="+id, "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"ok":true}`, resp.Body.String())

	resp = do(t, r, http.MethodGet, "/assistant?id="+id, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = do(t, r, http.MethodDelete, "/assistant?id=never-existed", "")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = do(t, r, http.MethodDelete, "/assistant", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.JSONEq(t, `{"error":"id required"}`, resp.Body.String())
}
