package processor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xhad/koa/internal/models"
)

// DefaultMaxChunkWords applies when a non-positive chunk size is configured.
const DefaultMaxChunkWords = 500

var ErrInvalidSourceID = errors.New("invalid source id")

type CorpusConfig struct {
	Dir           string
	MaxChunkWords int
}

// Corpus reads scraped source files from a single directory.
type Corpus struct {
	config CorpusConfig
}

func NewWithConfig(config CorpusConfig) *Corpus {
	if config.MaxChunkWords <= 0 {
		config.MaxChunkWords = DefaultMaxChunkWords
	}
	if config.Dir == "" {
		config.Dir = "."
	}

	return &Corpus{
		config: config,
	}
}

func (c *Corpus) Dir() string {
	return c.config.Dir
}

func (c *Corpus) MaxChunkWords() int {
	return c.config.MaxChunkWords
}

// Sources lists the corpus source ids in lexical order.
func (c *Corpus) Sources() ([]string, error) {
	entries, err := os.ReadDir(c.config.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		ids = append(ids, entry.Name())
	}

	return ids, nil
}

// Read parses one source file.
func (c *Corpus) Read(sourceID string) (models.SourceRecord, error) {
	if !validSourceID(sourceID) {
		return models.SourceRecord{}, fmt.Errorf("%w: %q", ErrInvalidSourceID, sourceID)
	}

	content, err := os.ReadFile(filepath.Join(c.config.Dir, sourceID))
	if err != nil {
		return models.SourceRecord{}, fmt.Errorf("failed to read source %s: %w", sourceID, err)
	}

	return ParseSource(sourceID, content), nil
}

// Open parses one source file and re-derives its chunks.
func (c *Corpus) Open(sourceID string) (models.SourceRecord, []models.Chunk, error) {
	record, err := c.Read(sourceID)
	if err != nil {
		return record, nil, err
	}
	return record, ChunkWords(sourceID, record.Body, c.config.MaxChunkWords), nil
}

// LoadAndChunk chunks every source in the corpus.
func (c *Corpus) LoadAndChunk() ([]models.Chunk, error) {
	ids, err := c.Sources()
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for _, id := range ids {
		_, sourceChunks, err := c.Open(id)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, sourceChunks...)
	}

	return chunks, nil
}

// LoadAndChunk is a convenience for a one-off corpus over folder.
func LoadAndChunk(folder string, maxChunkWords int) ([]models.Chunk, error) {
	return NewWithConfig(CorpusConfig{Dir: folder, MaxChunkWords: maxChunkWords}).LoadAndChunk()
}

// ParseSource splits a corpus file into its origin URL and body.
// Files are laid out as "url\n\nbody"; shorter files carry no URL.
func ParseSource(sourceID string, content []byte) models.SourceRecord {
	record := models.SourceRecord{
		SourceID:  sourceID,
		SourceURL: models.UnknownSource,
	}

	parts := strings.SplitN(string(content), "\n", 3)
	switch len(parts) {
	case 3:
		if url := strings.TrimSpace(parts[0]); url != "" {
			record.SourceURL = url
		}
		record.Body = parts[2]
	default:
		record.Body = parts[0]
	}

	record.Body = strings.TrimSpace(record.Body)
	return record
}

// ChunkWords groups the whitespace-separated words of body into runs of at most maxWords.
func ChunkWords(sourceID, body string, maxWords int) []models.Chunk {
	if maxWords <= 0 {
		maxWords = DefaultMaxChunkWords
	}

	words := strings.Fields(body)
	var chunks []models.Chunk

	for start := 0; start < len(words); start += maxWords {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, models.Chunk{
			SourceID: sourceID,
			Text:     strings.Join(words[start:end], " "),
			Ordinal:  len(chunks),
		})
	}

	return chunks
}

func validSourceID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	if strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return false
	}
	return filepath.Base(id) == id
}
