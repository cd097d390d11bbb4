package assistant

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sniprx/assistant/backend/internal/model/chat"
	chatService "github.com/sniprx/assistant/backend/internal/service/chat"
	"github.com/sniprx/assistant/backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// Handler serves session lifecycle calls keyed by the `id` query parameter.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates the session handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes mounts POST/GET/DELETE on /assistant.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/assistant", h.handlePost)
	r.Get("/assistant", h.handleGet)
	r.Delete("/assistant", h.handleDelete)
}

// handlePost creates a session when no id is given, otherwise renames and/or appends.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		newID, err := h.chatSvc.CreateSession(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("create session failed")
			utils.RespondError(w, http.StatusBadRequest, "bad request")
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"id": newID})
		return
	}

	name, messages, err := decodeUpdate(r.Body)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "bad body")
		return
	}

	if err := h.chatSvc.UpdateSession(r.Context(), id, name, messages); err != nil {
		if !errors.Is(err, chatService.ErrInvalidMessage) {
			log.Error().Err(err).Str("session", id).Msg("update session failed")
		}
		utils.RespondError(w, http.StatusBadRequest, "bad body")
		return
	}
	utils.RespondOK(w)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		utils.RespondError(w, http.StatusBadRequest, "id required")
		return
	}

	session, err := h.chatSvc.GetSession(r.Context(), id)
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "not found")
	case err != nil:
		log.Error().Err(err).Str("session", id).Msg("load session failed")
		utils.RespondError(w, http.StatusBadRequest, "bad request")
	default:
		utils.RespondJSON(w, http.StatusOK, map[string]chat.Session{"session": session})
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		utils.RespondError(w, http.StatusBadRequest, "id required")
		return
	}

	if err := h.chatSvc.DeleteSession(r.Context(), id); err != nil {
		log.Error().Err(err).Str("session", id).Msg("delete session failed")
		utils.RespondError(w, http.StatusBadRequest, "bad request")
		return
	}
	utils.RespondOK(w)
}

// decodeUpdate accepts `{name?: string, messages?: Message[]}`. Any other shape for those two
// keys is rejected rather than coerced.
func decodeUpdate(body io.Reader) (string, []chat.Message, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return "", nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", nil, err
	}
	if fields == nil {
		return "", nil, errors.New("body must be an object")
	}

	var name string
	if v, ok := fields["name"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &name); err != nil {
			return "", nil, err
		}
	}

	var messages []chat.Message
	if v, ok := fields["messages"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &messages); err != nil {
			return "", nil, err
		}
	}

	return name, messages, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
