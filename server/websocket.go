package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xhad/koa/pkg/chat"
	"go.uber.org/zap"
)

const (
	MessageTypeMessage = "message"
	MessageTypeReply   = "reply"
	MessageTypeError   = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// handleWebSocket serves one conversation per connection; it is forgotten on disconnect.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBytes)

	sessionID := "ws:" + uuid.NewString()
	defer s.registry.Reset(sessionID)
	logger := s.logger.With(zap.String("session", sessionID))
	logger.Debug("websocket connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Error reading message", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != MessageTypeMessage {
			s.sendMessage(conn, logger, MessageTypeError, "invalid message")
			continue
		}
		if err := chat.ValidateMessage(msg.Content); err != nil {
			s.sendMessage(conn, logger, MessageTypeError, err.Error())
			continue
		}

		reply := s.registry.Get(sessionID).HandleUserMessage(r.Context(), msg.Content)
		s.sendMessage(conn, logger, MessageTypeReply, reply)
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, logger *zap.Logger, msgType string, content string) {
	msg := Message{
		Type:    msgType,
		Content: content,
	}
	if err := conn.WriteJSON(msg); err != nil {
		logger.Warn("Error sending message", zap.Error(err))
	}
}
