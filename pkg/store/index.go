package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xhad/koa/internal/models"
	"github.com/xhad/koa/internal/types"
	"go.uber.org/zap"
)

var (
	ErrChunkingMismatch  = errors.New("index was built with different chunking parameters")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

type FileIndexConfig struct {
	IndexPath    string
	MetadataPath string
	ChunkWords   int
}

// FileIndex is an exact flat L2 index persisted as a binary vector file
// plus a JSON array of source ids. Position i of one matches position i of the other.
type FileIndex struct {
	config   FileIndexConfig
	embedder types.Embedder
	logger   *zap.Logger

	mu         sync.RWMutex
	dims       int
	chunkWords int
	vectors    [][]float32
	metadata   []string
}

// NewFileIndex loads the persisted index if both artifacts exist, otherwise starts empty.
func NewFileIndex(config FileIndexConfig, embedder types.Embedder, logger *zap.Logger) *FileIndex {
	if config.IndexPath == "" {
		config.IndexPath = "vector_store.index"
	}
	if config.MetadataPath == "" {
		config.MetadataPath = "metadata.json"
	}
	if config.ChunkWords <= 0 {
		config.ChunkWords = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	x := &FileIndex{
		config:     config,
		embedder:   embedder,
		logger:     logger,
		chunkWords: config.ChunkWords,
	}
	x.Load()

	return x
}

// AddDocuments embeds all chunk texts in one batch and appends them.
// Nothing is added when embedding fails. Persisting afterwards is best effort.
func (x *FileIndex) AddDocuments(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := x.CheckChunking(ctx, x.config.ChunkWords); err != nil {
		return err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := x.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		x.logger.Error("failed to embed documents", zap.Int("chunks", len(chunks)), zap.Error(err))
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(chunks) {
		x.logger.Error("embedder returned wrong number of vectors",
			zap.Int("chunks", len(chunks)), zap.Int("vectors", len(vectors)))
		return fmt.Errorf("failed to embed documents: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	x.mu.Lock()
	dims := x.dims
	if len(x.vectors) == 0 {
		dims = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != dims || dims == 0 {
			x.mu.Unlock()
			x.logger.Error("embedding dimension mismatch", zap.Int("expected", dims), zap.Int("got", len(v)))
			return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dims, len(v))
		}
	}

	x.dims = dims
	x.chunkWords = x.config.ChunkWords
	for i, v := range vectors {
		vec := make([]float32, dims)
		copy(vec, v)
		x.vectors = append(x.vectors, vec)
		x.metadata = append(x.metadata, chunks[i].SourceID)
	}
	x.mu.Unlock()

	if err := x.Save(); err != nil {
		x.logger.Error("failed to persist index", zap.Error(err))
	}

	return nil
}

// Search returns up to topK sources ordered by increasing L2 distance to the query.
// Failures are logged and yield no results.
func (x *FileIndex) Search(ctx context.Context, query string, topK int) []models.SearchResult {
	if topK <= 0 || x.Len() == 0 {
		return nil
	}

	q, err := x.embedder.EmbedQuery(ctx, query)
	if err != nil {
		x.logger.Error("failed to embed query", zap.Error(err))
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(q) != x.dims {
		x.logger.Error("query dimension mismatch", zap.Int("expected", x.dims), zap.Int("got", len(q)))
		return nil
	}

	type scored struct {
		pos  int
		dist float64
	}

	n := len(x.vectors)
	if len(x.metadata) < n {
		n = len(x.metadata)
	}

	scores := make([]scored, n)
	for i := 0; i < n; i++ {
		scores[i] = scored{pos: i, dist: SquaredL2(q, x.vectors[i])}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].dist < scores[j].dist })

	if topK > len(scores) {
		topK = len(scores)
	}

	results := make([]models.SearchResult, topK)
	for i := 0; i < topK; i++ {
		results[i] = models.SearchResult{
			SourceID: x.metadata[scores[i].pos],
			Score:    Score(scores[i].dist),
		}
	}

	return results
}

// CheckChunking reports ErrChunkingMismatch when a non-empty index was built
// with a different max chunk size than words.
func (x *FileIndex) CheckChunking(ctx context.Context, words int) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.vectors) > 0 && x.chunkWords != words {
		return fmt.Errorf("%w: index uses %d words per chunk, configured %d", ErrChunkingMismatch, x.chunkWords, words)
	}
	return nil
}

func (x *FileIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

func (x *FileIndex) Dims() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dims
}

func (x *FileIndex) Close() error {
	return nil
}

// SquaredL2 is the squared Euclidean distance between equal-length vectors.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// Score maps a non-negative distance into (0, 1].
func Score(dist float64) float64 {
	return 1 / (1 + dist)
}
