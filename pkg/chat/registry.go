package chat

import (
	"sync"

	"github.com/xhad/koa/internal/types"
	"go.uber.org/zap"
)

// Registry hands out one Session per user id, creating it on first use.
type Registry struct {
	config    SessionConfig
	builder   types.ContextBuilder
	completer types.Completer
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(config SessionConfig, builder types.ContextBuilder, completer types.Completer, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		config:    config,
		builder:   builder,
		completer: completer,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

func (r *Registry) Get(userID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		s = NewSession(r.config, r.builder, r.completer, r.logger.With(zap.String("user", userID)))
		r.sessions[userID] = s
	}
	return s
}

// Reset forgets a user's conversation.
func (r *Registry) Reset(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
