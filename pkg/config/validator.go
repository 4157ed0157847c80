package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	switch c.LLM.Provider {
	case "groq", "openai", "ollama":
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.LLM.Provider),
		})
	}

	if c.LLM.Provider == "groq" && c.LLM.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.api_key",
			Message: "GROQ_API_KEY is required for the groq provider",
		})
	}

	if c.LLM.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid base URL",
			})
		}
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if t := c.Temperature(); t < 0 || t > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Validate Embedding config
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.Embedding.Provider),
		})
	}

	// Validate Index config
	switch c.Index.Backend {
	case "file":
		if c.Index.IndexPath == "" || c.Index.MetadataPath == "" {
			errors = append(errors, ValidationError{
				Field:   "index.index_path",
				Message: "index_path and metadata_path are required for the file backend",
			})
		}
	case "pgvector":
		if c.Index.DatabaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "index.database_url",
				Message: "database_url is required for the pgvector backend",
			})
		}
		if c.Index.VectorDim < 1 {
			errors = append(errors, ValidationError{
				Field:   "index.vector_dim",
				Message: "vector_dim must be positive",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "index.backend",
			Message: fmt.Sprintf("unknown backend: %s", c.Index.Backend),
		})
	}

	// Validate Corpus and Retrieval config
	if c.Corpus.MaxChunkWords < 1 {
		errors = append(errors, ValidationError{
			Field:   "corpus.max_chunk_words",
			Message: "max_chunk_words must be positive",
		})
	}

	if c.Retrieval.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Retrieval.MaxTokensPerRequest < 1 || c.Retrieval.CharsPerToken < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.max_tokens_per_request",
			Message: "max_tokens_per_request and chars_per_token must be positive",
		})
	}

	if c.Chat.MaxHistory < 1 {
		errors = append(errors, ValidationError{
			Field:   "chat.max_history",
			Message: "max_history must be positive",
		})
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	// Validate Scraper config
	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Scraper.MaxWorkers < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_workers",
			Message: "max_workers must be positive",
		})
	}

	return errors
}
