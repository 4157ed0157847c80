package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/koa/internal/models"
	"github.com/xhad/koa/internal/types"
	"go.uber.org/zap"
)

type PGVectorConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	ChunkWords int
}

// PGVectorIndex keeps chunk embeddings in PostgreSQL and ranks them with pgvector's L2 operator.
type PGVectorIndex struct {
	config   PGVectorConfig
	pool     *pgxpool.Pool
	embedder types.Embedder
	logger   *zap.Logger
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func NewPGVectorIndex(ctx context.Context, config PGVectorConfig, embedder types.Embedder, logger *zap.Logger) (*PGVectorIndex, error) {
	if config.TableName == "" {
		config.TableName = "koa_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 384 // all-minilm
	}
	if config.ChunkWords <= 0 {
		config.ChunkWords = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !identifierPattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name: %q", config.TableName)
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &PGVectorIndex{
		config:   config,
		pool:     pool,
		embedder: embedder,
		logger:   logger,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *PGVectorIndex) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			position BIGSERIAL PRIMARY KEY,
			source_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			chunk_words INTEGER NOT NULL,
			content TEXT,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Tables created by earlier versions carry an ivfflat index; hnsw replaces it.
	_, err = vs.pool.Exec(ctx, fmt.Sprintf("DROP INDEX IF EXISTS %s_embedding_idx", vs.config.TableName))
	if err != nil {
		return fmt.Errorf("failed to drop ivfflat index: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_hnsw_idx
		ON %s
		USING hnsw (embedding vector_l2_ops)`,
		vs.config.TableName, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// AddDocuments embeds the chunks in one batch and inserts them in a single transaction.
func (vs *PGVectorIndex) AddDocuments(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := vs.CheckChunking(ctx, vs.config.ChunkWords); err != nil {
		return err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = sanitizeUTF8(c.Text)
	}

	vectors, err := vs.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		vs.logger.Error("failed to embed documents", zap.Int("chunks", len(chunks)), zap.Error(err))
		return fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("failed to create embeddings: got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for _, v := range vectors {
		if len(v) != vs.config.VectorDim {
			return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, vs.config.VectorDim, len(v))
		}
	}

	// Begin transaction
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (source_id, ordinal, chunk_words, content, embedding)
		VALUES ($1, $2, $3, $4, $5)`,
		vs.config.TableName)

	batch := &pgx.Batch{}
	for i, c := range chunks {
		batch.Queue(stmt, c.SourceID, c.Ordinal, vs.config.ChunkWords, texts[i], pgvector.NewVector(vectors[i]))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Search ranks stored chunks by L2 distance to the embedded query. Failures yield no results.
func (vs *PGVectorIndex) Search(ctx context.Context, query string, topK int) []models.SearchResult {
	if topK <= 0 {
		return nil
	}

	q, err := vs.embedder.EmbedQuery(ctx, query)
	if err != nil {
		vs.logger.Error("failed to embed query", zap.Error(err))
		return nil
	}
	if len(q) != vs.config.VectorDim {
		vs.logger.Error("query dimension mismatch", zap.Int("expected", vs.config.VectorDim), zap.Int("got", len(q)))
		return nil
	}

	sql := fmt.Sprintf(`
		SELECT source_id, embedding <-> $1 AS distance
		FROM %s
		ORDER BY distance, position
		LIMIT $2`,
		vs.config.TableName)

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		vs.logger.Error("failed to begin search", zap.Error(err))
		return nil
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", efSearch(topK))); err != nil {
		vs.logger.Error("failed to set ef_search", zap.Error(err))
		return nil
	}

	rows, err := tx.Query(ctx, sql, pgvector.NewVector(q), topK)
	if err != nil {
		vs.logger.Error("failed to query chunks", zap.Error(err))
		return nil
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var (
			sourceID string
			distance float64
		)
		if err := rows.Scan(&sourceID, &distance); err != nil {
			vs.logger.Error("failed to scan row", zap.Error(err))
			return nil
		}
		results = append(results, models.SearchResult{SourceID: sourceID, Score: Score(distance)})
	}
	if err := rows.Err(); err != nil {
		vs.logger.Error("failed to read rows", zap.Error(err))
		return nil
	}

	return results
}

// efSearch sizes the hnsw candidate list so a scan can yield topK rows.
func efSearch(topK int) int {
	const (
		minEF = 40
		maxEF = 1000
	)
	if topK < minEF {
		return minEF
	}
	if topK > maxEF {
		return maxEF
	}
	return topK
}

// CheckChunking reports ErrChunkingMismatch when stored rows were chunked differently.
func (vs *PGVectorIndex) CheckChunking(ctx context.Context, words int) error {
	sql := fmt.Sprintf(`SELECT chunk_words FROM %s WHERE chunk_words <> $1 LIMIT 1`, vs.config.TableName)

	var stored int
	err := vs.pool.QueryRow(ctx, sql, words).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read chunking parameters: %w", err)
	}

	return fmt.Errorf("%w: index uses %d words per chunk, configured %d", ErrChunkingMismatch, stored, words)
}

func (vs *PGVectorIndex) Len() int {
	var n int
	sql := fmt.Sprintf(`SELECT count(*) FROM %s`, vs.config.TableName)
	if err := vs.pool.QueryRow(context.Background(), sql).Scan(&n); err != nil {
		vs.logger.Error("failed to count chunks", zap.Error(err))
		return 0
	}
	return n
}

func (vs *PGVectorIndex) Close() error {
	if vs.pool != nil {
		vs.pool.Close()
	}
	return nil
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
