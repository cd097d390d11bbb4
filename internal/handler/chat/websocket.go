package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	chatService "github.com/sniprx/assistant/backend/internal/service/chat"
	"github.com/sniprx/assistant/backend/pkg/utils"
)

// WebSocketHandler carries chat turns over one long-lived connection.
type WebSocketHandler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the WebSocket transport.
func NewWebSocketHandler(chatSvc *chatService.Service) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Data      string `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

const writeWait = 10 * time.Second

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}

		switch msg.Type {
		case "chat":
			if err := h.handleChatMessage(ctx, conn, msg.Data); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case "ping":
			if err := h.send(conn, outgoingMessage{Type: "pong"}); err != nil {
				return
			}
		default:
			if err := h.send(conn, outgoingMessage{Type: "error", Data: "unknown message type"}); err != nil {
				return
			}
		}
	}
}

// handleChatMessage streams one reply. Only write failures are returned; request problems are
// reported to the peer as an error frame.
func (h *WebSocketHandler) handleChatMessage(ctx context.Context, conn *websocket.Conn, data json.RawMessage) error {
	req, err := decodeRequest(data)
	if err != nil {
		return h.send(conn, outgoingMessage{Type: "error", Data: "Invalid request"})
	}

	stream, err := h.chatSvc.Chat(ctx, req.SessionID, req.Messages)
	if err != nil {
		return h.send(conn, outgoingMessage{Type: "error", SessionID: req.SessionID, Data: "Invalid request"})
	}
	defer stream.Body.Close()

	if err := h.send(conn, outgoingMessage{Type: "start", SessionID: req.SessionID, Mode: string(stream.Mode)}); err != nil {
		return err
	}

	// Text frames must be valid UTF-8, so a rune split across reads is held for the next frame.
	var pending []byte
	err = relay(ctx, stream, func(chunk []byte) error {
		var complete string
		complete, pending = utils.SplitValidUTF8(append(pending, chunk...))
		if complete == "" {
			return nil
		}
		return h.send(conn, outgoingMessage{Type: "chunk", SessionID: req.SessionID, Data: complete})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		log.Warn().Err(err).Str("session", req.SessionID).Msg("websocket stream interrupted")
	}
	if len(pending) > 0 {
		if err := h.send(conn, outgoingMessage{Type: "chunk", SessionID: req.SessionID, Data: string(pending)}); err != nil {
			return err
		}
	}

	return h.send(conn, outgoingMessage{Type: "end", SessionID: req.SessionID})
}

func (h *WebSocketHandler) send(conn *websocket.Conn, msg outgoingMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
