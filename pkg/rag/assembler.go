// Package rag assembles retrieved corpus snippets into a citation-annotated
// context block for the chat model.
package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xhad/koa/internal/models"
	"github.com/xhad/koa/internal/types"
	"github.com/xhad/koa/pkg/processor"
	"go.uber.org/zap"
)

type AssemblerConfig struct {
	TopK            int
	MaxChunkWords   int
	MaxDisplayChars int
	CharBudget      int
}

// SourceReader resolves a source id to its parsed corpus file.
type SourceReader interface {
	Read(sourceID string) (models.SourceRecord, error)
}

type Assembler struct {
	config  AssemblerConfig
	index   types.Searcher
	sources SourceReader
	logger  *zap.Logger
}

func NewWithConfig(config AssemblerConfig, index types.Searcher, sources SourceReader, logger *zap.Logger) *Assembler {
	if config.TopK <= 0 {
		config.TopK = 3
	}
	if config.MaxChunkWords <= 0 {
		config.MaxChunkWords = processor.DefaultMaxChunkWords
	}
	if config.MaxDisplayChars <= 0 {
		config.MaxDisplayChars = 500
	}
	if config.CharBudget <= 0 {
		config.CharBudget = 4096 * 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Assembler{
		config:  config,
		index:   index,
		sources: sources,
		logger:  logger,
	}
}

// Build returns the context for query, or "" when nothing relevant fits.
// Blocks are emitted in rank order and assembly stops at the first block
// that would exceed the character budget.
func (a *Assembler) Build(ctx context.Context, query string) string {
	results := a.index.Search(ctx, query, a.config.TopK)

	var (
		b       strings.Builder
		total   int
		sources []string
	)

assemble:
	for _, result := range results {
		record, err := a.sources.Read(result.SourceID)
		if err != nil {
			a.logger.Warn("skipping unreadable source", zap.String("source", result.SourceID), zap.Error(err))
			continue
		}

		for _, chunk := range processor.ChunkWords(record.SourceID, record.Body, a.config.MaxChunkWords) {
			block := formatBlock(record, truncate(chunk.Text, a.config.MaxDisplayChars))
			size := utf8.RuneCountInString(block)
			if total+size > a.config.CharBudget {
				break assemble
			}
			b.WriteString(block)
			total += size
		}
		sources = append(sources, record.SourceID)
	}

	a.logger.Debug("assembled context",
		zap.String("query", query),
		zap.Int("results", len(results)),
		zap.Strings("sources", sources),
		zap.Int("chars", total),
		zap.String("context", b.String()))

	return b.String()
}

func formatBlock(record models.SourceRecord, text string) string {
	return fmt.Sprintf("From %s (%s):\n%s\n\n", record.SourceID, record.SourceURL, text)
}

// truncate keeps the first max characters of s, marking the cut with "...".
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
