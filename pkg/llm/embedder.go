package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

type EmbedderConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string // Ollama server URL or OpenAI-compatible endpoint
	BatchSize int
}

// NewEmbedder builds a batching embedder over the configured provider.
func NewEmbedder(config EmbedderConfig) (*embeddings.EmbedderImpl, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}

	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch config.Provider {
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "all-minilm"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		client, err = ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
	case ProviderOpenAI:
		if config.Model == "" {
			config.Model = "text-embedding-3-small"
		}
		opts := []openai.Option{
			openai.WithToken(config.APIKey),
			openai.WithEmbeddingModel(config.Model),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		client, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return NewEmbedderFromClient(client, config.BatchSize)
}

// NewEmbedderFromClient wraps any embedding client with batching and newline stripping.
func NewEmbedderFromClient(client embeddings.EmbedderClient, batchSize int) (*embeddings.EmbedderImpl, error) {
	if batchSize <= 0 {
		batchSize = 64
	}

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(batchSize),
		embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return emb, nil
}
