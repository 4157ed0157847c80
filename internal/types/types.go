package types

import (
	"context"

	"github.com/xhad/koa/internal/models"
)

// Core interfaces
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorIndex interface {
	AddDocuments(ctx context.Context, chunks []models.Chunk) error
	Search(ctx context.Context, query string, topK int) []models.SearchResult
	CheckChunking(ctx context.Context, words int) error
	Len() int
	Close() error
}

// Searcher is the read side of a VectorIndex, used at serving time.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) []models.SearchResult
}

// Completer submits an ordered turn list to a language model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, turns []models.Turn) (string, error)
}

type ContextBuilder interface {
	Build(ctx context.Context, query string) string
}
