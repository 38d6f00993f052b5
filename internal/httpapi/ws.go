package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/dialogd/internal/chat"
)

type wsClientMessage struct {
	Type   string `json:"type"` // "message" or "reset"
	UserID string `json:"user_id"`
	Text   string `json:"text,omitempty"`
}

type wsServerMessage struct {
	Type   string `json:"type"` // "reply", "reset_ok" or "error"
	UserID string `json:"user_id,omitempty"`
	Text   string `json:"text,omitempty"`
	Code   string `json:"code,omitempty"`
}

// handleChatWS serves a websocket chat connection. Events are processed in
// arrival order on the connection's read loop, so writes stay
// single-threaded; per-user serialization across connections is still the
// orchestrator's job.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		var msg wsClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		out := s.dispatchWS(r, msg)
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(out); err != nil {
			return
		}
	}
}

func (s *Server) dispatchWS(r *http.Request, msg wsClientMessage) wsServerMessage {
	if strings.TrimSpace(msg.UserID) == "" {
		return wsServerMessage{Type: "error", Code: "missing_user_id", Text: "user_id is required"}
	}

	switch msg.Type {
	case "message":
		reply, err := s.orchestrator.HandleMessage(r.Context(), msg.UserID, msg.Text)
		if err != nil {
			return wsServerMessage{Type: "error", UserID: msg.UserID, Code: "backend_failure", Text: chat.FailureNotice}
		}
		return wsServerMessage{Type: "reply", UserID: msg.UserID, Text: reply}
	case "reset":
		notice := s.orchestrator.HandleReset(r.Context(), msg.UserID)
		return wsServerMessage{Type: "reset_ok", UserID: msg.UserID, Text: notice}
	default:
		return wsServerMessage{Type: "error", UserID: msg.UserID, Code: "invalid_client_message", Text: "unknown message type"}
	}
}
