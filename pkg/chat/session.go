package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/xhad/koa/internal/models"
	"github.com/xhad/koa/internal/types"
	"github.com/xhad/koa/pkg/sanitize"
	"go.uber.org/zap"
)

// ErrorReply is returned to the user when the completion call fails.
const ErrorReply = "Error: Unable to retrieve response."

var ErrEmptyMessage = errors.New("message is empty")

type State int

const (
	StateUninitialized State = iota
	StateActive
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	default:
		return "uninitialized"
	}
}

type SessionConfig struct {
	Persona    string
	MaxHistory int
}

// Session is one user's bounded conversation. History starts with the persona
// system turn and keeps at most MaxHistory turns after it.
type Session struct {
	config    SessionConfig
	builder   types.ContextBuilder
	completer types.Completer
	logger    *zap.Logger

	mu      sync.Mutex
	history []models.Turn
}

func NewSession(config SessionConfig, builder types.ContextBuilder, completer types.Completer, logger *zap.Logger) *Session {
	if config.MaxHistory <= 0 {
		config.MaxHistory = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Session{
		config:    config,
		builder:   builder,
		completer: completer,
		logger:    logger,
	}
}

// ValidateMessage rejects blank user input.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return StateUninitialized
	}
	return StateActive
}

// History returns a copy of the current turns.
func (s *Session) History() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Turn(nil), s.history...)
}

// AppendTurn adds a turn, evicting the oldest turn after the persona when full.
func (s *Session) AppendTurn(role models.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(role, content)
}

func (s *Session) appendLocked(role models.Role, content string) {
	if len(s.history) == 0 {
		s.history = append(s.history, models.Turn{Role: models.RoleSystem, Content: s.config.Persona})
	}

	s.history = append(s.history, models.Turn{Role: role, Content: content})
	if len(s.history) > s.config.MaxHistory+1 {
		s.history = append(s.history[:1], s.history[2:]...)
	}
}

// HandleUserMessage runs one retrieval-augmented exchange and returns the
// plain-text reply, or ErrorReply when the model cannot be reached. On failure
// the context and user turns stay in history so a retry keeps them.
func (s *Session) HandleUserMessage(ctx context.Context, text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if retrieved := s.builder.Build(ctx, text); retrieved != "" {
		s.appendLocked(models.RoleSystem, retrieved)
	}
	s.appendLocked(models.RoleUser, text)

	turns := append([]models.Turn(nil), s.history...)
	reply, err := s.completer.Complete(ctx, turns)
	if err != nil {
		s.logger.Error("completion failed", zap.Int("turns", len(turns)), zap.Error(err))
		return ErrorReply
	}

	reply = sanitize.StripMarkup(reply)
	s.appendLocked(models.RoleAssistant, reply)

	return reply
}

// Reset drops all turns, returning the session to its uninitialized state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}
