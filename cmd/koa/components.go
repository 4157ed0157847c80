package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/koa/internal/types"
	"github.com/xhad/koa/pkg/chat"
	"github.com/xhad/koa/pkg/config"
	"github.com/xhad/koa/pkg/llm"
	"github.com/xhad/koa/pkg/processor"
	"github.com/xhad/koa/pkg/rag"
	"github.com/xhad/koa/pkg/store"
	"go.uber.org/zap"
)

const backendPGVector = "pgvector"

func newCorpus(cfg *config.Config) *processor.Corpus {
	return processor.NewWithConfig(processor.CorpusConfig{
		Dir:           cfg.Corpus.Dir,
		MaxChunkWords: cfg.Corpus.MaxChunkWords,
	})
}

// openIndex builds the embedder and the configured index backend.
func openIndex(ctx context.Context, cfg *config.Config, logger *zap.Logger) (types.VectorIndex, error) {
	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		BatchSize: cfg.Embedding.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Index.Backend == backendPGVector {
		index, err := store.NewPGVectorIndex(ctx, store.PGVectorConfig{
			ConnString: cfg.Index.DatabaseURL,
			TableName:  cfg.Index.TableName,
			VectorDim:  cfg.Index.VectorDim,
			ChunkWords: cfg.Corpus.MaxChunkWords,
		}, embedder, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		return index, nil
	}

	return store.NewFileIndex(store.FileIndexConfig{
		IndexPath:    cfg.Index.IndexPath,
		MetadataPath: cfg.Index.MetadataPath,
		ChunkWords:   cfg.Corpus.MaxChunkWords,
	}, embedder, logger), nil
}

// newRegistry wires retrieval and completion into per-user sessions, refusing
// an index whose chunks cannot be re-derived from the corpus.
func newRegistry(ctx context.Context, cfg *config.Config, index types.VectorIndex, logger *zap.Logger) (*chat.Registry, error) {
	if err := index.CheckChunking(ctx, cfg.Corpus.MaxChunkWords); err != nil {
		return nil, fmt.Errorf("%w: rebuild it with `koa index`", err)
	}

	engine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.Temperature(),
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	assembler := rag.NewWithConfig(rag.AssemblerConfig{
		TopK:            cfg.Retrieval.TopK,
		MaxChunkWords:   cfg.Corpus.MaxChunkWords,
		MaxDisplayChars: cfg.Retrieval.MaxDisplayChars,
		CharBudget:      cfg.CharBudget(),
	}, index, newCorpus(cfg), logger)

	return chat.NewRegistry(chat.SessionConfig{
		Persona:    cfg.LLM.Persona,
		MaxHistory: cfg.Chat.MaxHistory,
	}, assembler, engine, logger), nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}

// batches splits n items into consecutive [start, end) ranges of at most size.
func batches(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
