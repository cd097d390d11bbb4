package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sniprx/assistant/backend/internal/model/chat"
	chatService "github.com/sniprx/assistant/backend/internal/service/chat"
	"github.com/sniprx/assistant/backend/internal/service/reply"
	"github.com/sniprx/assistant/backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// Handler relays chat replies over plain HTTP streaming and WebSocket.
type Handler struct {
	chatSvc *chatService.Service
	ws      *WebSocketHandler
}

// New creates the chat handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		ws:      NewWebSocketHandler(chatSvc),
	}
}

// RegisterRoutes mounts /chat and /chat/ws.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/chat/ws", h.ws.handleWebSocket)
}

// Request is the chat payload shared by both transports.
type Request struct {
	Messages  []chat.Message `json:"messages"`
	SessionID string         `json:"sessionId,omitempty"`
}

func decodeRequest(data []byte) (Request, error) {
	var payload struct {
		Messages  *[]chat.Message `json:"messages"`
		SessionID string          `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return Request{}, err
	}
	if payload.Messages == nil {
		return Request{}, errors.New("messages required")
	}
	return Request{Messages: *payload.Messages, SessionID: payload.SessionID}, nil
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	req, err := decodeRequest(data)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	stream, err := h.chatSvc.Chat(r.Context(), req.SessionID, req.Messages)
	if err != nil {
		if !errors.Is(err, chatService.ErrInvalidMessage) {
			log.Error().Err(err).Str("session", req.SessionID).Msg("chat failed")
		}
		utils.RespondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	defer stream.Body.Close()

	utils.SetupStreamHeaders(w, stream.ContentType)
	w.Header().Set("X-Assistant-Mode", string(stream.Mode))
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	err = relay(r.Context(), stream, func(chunk []byte) error {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Str("session", req.SessionID).Msg("chat stream interrupted")
	}
}

// relay hands each read from the stream to emit, in order, until EOF.
func relay(ctx context.Context, stream *reply.Stream, emit func([]byte) error) error {
	buf := make([]byte, 4096)
	for {
		n, err := stream.Body.Read(buf)
		if n > 0 {
			if werr := emit(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
}
