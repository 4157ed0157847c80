// Package server exposes the chat assistant over HTTP and websockets.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xhad/koa/pkg/chat"
	"go.uber.org/zap"
)

type Config struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// maxRequestBytes caps a chat request body and a websocket message.
const maxRequestBytes = 64 << 10

// Counter reports how many chunks are searchable.
type Counter interface {
	Len() int
}

type Server struct {
	config   Config
	registry *chat.Registry
	index    Counter
	logger   *zap.Logger
	server   *http.Server
}

func NewServer(config Config, registry *chat.Registry, index Counter, logger *zap.Logger) *Server {
	if config.Host == "" {
		config.Host = "0.0.0.0"
	}
	if config.Port == 0 {
		config.Port = 8000
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:   config,
		registry: registry,
		index:    index,
		logger:   logger,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.config.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(s.recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
		r.Post("/chat", s.handleChat)
	})

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// recoverer turns handler panics into a generic 500 without leaking details.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("handler panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", middleware.GetReqID(r.Context())))
				s.respondError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
