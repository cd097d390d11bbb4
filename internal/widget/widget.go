// Package widget is the client side of the assistant: it keeps the local conversation, owns one
// server session and renders streamed replies as they arrive.
package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/sniprx/assistant/backend/internal/analysis/strategy"
	"github.com/sniprx/assistant/backend/internal/model/chat"
	"github.com/sniprx/assistant/backend/pkg/utils"
)

// Greeting seeds an empty conversation.
const Greeting = "Hi! I'm your SniprX assistant. Ask me about strategies or the dashboard."

// DefaultName labels sessions the user has not renamed.
const DefaultName = "Conversation"

// Widget drives the session and chat endpoints of one assistant server.
type Widget struct {
	baseURL   string
	client    *http.Client
	statePath string
	now       func() time.Time

	mu        sync.Mutex
	messages  []chat.Message
	sessionID string
	name      string
	// gen changes on Clear so a reply still streaming for the old conversation is dropped.
	gen int
}

// Option customizes a Widget.
type Option func(*Widget)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Widget) { w.client = c }
}

// WithStatePath persists the local conversation to path.
func WithStatePath(path string) Option {
	return func(w *Widget) { w.statePath = path }
}

// WithClock overrides the time source used for message labels.
func WithClock(now func() time.Time) Option {
	return func(w *Widget) { w.now = now }
}

// New restores any cached conversation. Nothing is sent until Open or Send.
func New(baseURL string, opts ...Option) *Widget {
	w := &Widget{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		now:     time.Now,
		name:    DefaultName,
	}
	for _, opt := range opts {
		opt(w)
	}

	st := loadState(w.statePath)
	w.sessionID = st.SessionID
	w.messages = st.Messages
	if len(w.messages) == 0 {
		w.messages = []chat.Message{w.message(chat.RoleAssistant, Greeting)}
	}
	return w
}

// Messages returns a copy of the local conversation.
func (w *Widget) Messages() []chat.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]chat.Message(nil), w.messages...)
}

// SessionID returns the server session in use, if any.
func (w *Widget) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionID
}

// Name returns the session label.
func (w *Widget) Name() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.name
}

// Open adopts the cached server session when it still exists, otherwise creates one. Failures
// leave the widget usable without a session.
func (w *Widget) Open(ctx context.Context) {
	if id := w.SessionID(); id != "" {
		session, err := w.fetchSession(ctx, id)
		if err == nil {
			w.mu.Lock()
			w.name = DefaultName
			if session.Name != "" {
				w.name = session.Name
			}
			if len(session.Messages) > 0 {
				w.messages = session.Messages
			}
			w.persistLocked()
			w.mu.Unlock()
			return
		}
		log.Debug().Err(err).Str("session", id).Msg("cached session unavailable, creating a new one")
	}

	id, err := w.createSession(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("could not create assistant session")
		return
	}

	w.mu.Lock()
	w.sessionID = id
	w.persistLocked()
	w.mu.Unlock()
}

// Send posts text with the full local history and streams the reply into a placeholder
// message. onUpdate, when set, receives the placeholder content after every chunk. Transport
// failures are answered locally, so Send always completes the reply.
func (w *Widget) Send(ctx context.Context, text string, onUpdate func(content string)) chat.Message {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}
	}

	w.mu.Lock()
	conv := make([]chat.Message, 0, len(w.messages)+1)
	for _, m := range w.messages {
		conv = append(conv, chat.Message{Role: m.Role, Content: m.Content})
	}
	conv = append(conv, chat.Message{Role: chat.RoleUser, Content: text})

	placeholder := w.message(chat.RoleAssistant, "")
	w.messages = append(w.messages, w.message(chat.RoleUser, text), placeholder)
	sessionID := w.sessionID
	gen := w.gen
	w.persistLocked()
	w.mu.Unlock()

	update := func(content string) {
		w.setReply(gen, content)
		if onUpdate != nil {
			onUpdate(content)
		}
	}

	content, err := w.streamReply(ctx, sessionID, conv, update)
	if err != nil {
		log.Debug().Err(err).Msg("chat request failed, answering locally")
		content = strategy.WidgetReply(text)
		update(content)
	}

	w.mu.Lock()
	w.persistLocked()
	w.mu.Unlock()

	placeholder.Content = content
	return placeholder
}

// Rename stores name on the server session.
func (w *Widget) Rename(ctx context.Context, name string) error {
	w.mu.Lock()
	w.name = name
	id := w.sessionID
	w.mu.Unlock()
	if id == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return errors.Wrap(err, "encode rename")
	}
	resp, err := w.do(ctx, http.MethodPost, w.sessionURL(id), bytes.NewReader(body))
	if err != nil {
		return err
	}
	return drain(resp)
}

// Clear deletes the server session and forgets the local conversation.
func (w *Widget) Clear(ctx context.Context) error {
	id := w.SessionID()
	if id == "" {
		return nil
	}

	resp, err := w.do(ctx, http.MethodDelete, w.sessionURL(id), nil)
	if err != nil {
		return err
	}
	if err := drain(resp); err != nil {
		return err
	}

	w.mu.Lock()
	w.messages = nil
	w.sessionID = ""
	w.name = DefaultName
	w.gen++
	w.persistLocked()
	w.mu.Unlock()
	return nil
}

// streamReply returns the reply accumulated so far, reporting the running text to update after
// every read.
func (w *Widget) streamReply(ctx context.Context, sessionID string, conv []chat.Message, update func(string)) (string, error) {
	payload := struct {
		Messages  []chat.Message `json:"messages"`
		SessionID string         `json:"sessionId,omitempty"`
	}{Messages: conv, SessionID: sessionID}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "encode chat request")
	}

	resp, err := w.do(ctx, http.MethodPost, w.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat endpoint returned %s", resp.Status)
	}

	var (
		content strings.Builder
		pending []byte
	)
	buf := make([]byte, 1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			var complete string
			complete, pending = utils.SplitValidUTF8(append(pending, buf[:n]...))
			if complete != "" {
				content.WriteString(complete)
				update(content.String())
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return content.String(), errors.Wrap(readErr, "read chat stream")
		}
	}

	if len(pending) > 0 {
		content.Write(pending)
		update(content.String())
	}
	return content.String(), nil
}

func (w *Widget) fetchSession(ctx context.Context, id string) (chat.Session, error) {
	resp, err := w.do(ctx, http.MethodGet, w.sessionURL(id), nil)
	if err != nil {
		return chat.Session{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return chat.Session{}, fmt.Errorf("get session returned %s", resp.Status)
	}

	var payload struct {
		Session chat.Session `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return chat.Session{}, errors.Wrap(err, "decode session")
	}
	return payload.Session, nil
}

func (w *Widget) createSession(ctx context.Context) (string, error) {
	resp, err := w.do(ctx, http.MethodPost, w.baseURL+"/api/assistant", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errors.Wrap(err, "decode created session")
	}
	if payload.ID == "" {
		return "", errors.New("server returned no session id")
	}
	return payload.ID, nil
}

func (w *Widget) do(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, target)
	}
	return resp, nil
}

func (w *Widget) sessionURL(id string) string {
	return w.baseURL + "/api/assistant?id=" + url.QueryEscape(id)
}

func (w *Widget) message(role chat.Role, content string) chat.Message {
	return chat.Message{Role: role, Content: content, Time: chat.DisplayTime(w.now())}
}

// setReply stores content in the placeholder of generation gen, if that conversation is still
// the current one.
func (w *Widget) setReply(gen int, content string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen || len(w.messages) == 0 {
		return
	}
	w.messages[len(w.messages)-1].Content = content
}

func (w *Widget) persistLocked() {
	st := localState{SessionID: w.sessionID, Messages: w.messages}
	if err := saveState(w.statePath, st); err != nil {
		log.Debug().Err(err).Msg("could not persist widget state")
	}
}

func drain(resp *http.Response) error {
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("assistant endpoint returned %s", resp.Status)
	}
	return nil
}
