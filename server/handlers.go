package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/xhad/koa/pkg/chat"
	"go.uber.org/zap"
)

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusBadRequest, "request body too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := chat.ValidateMessage(req.Message); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user := clientHost(r)
	s.logger.Debug("chat request", zap.String("user", user), zap.Int("chars", len(req.Message)))

	reply := s.registry.Get(user).HandleUserMessage(r.Context(), req.Message)
	s.respondJSON(w, http.StatusOK, ChatResponse{Reply: reply})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.index != nil {
		resp["chunks"] = s.index.Len()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// clientHost identifies a user by the host part of the remote address. The
// address only reflects proxy headers when TrustProxyHeaders is set.
func clientHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
