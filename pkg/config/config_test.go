package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"GROQ_API_KEY", "OPENAI_API_KEY", "OLLAMA_BASE_URL", "DATABASE_URL", "PORT"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)

	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  provider: "openai"
  api_key: "sk-test"
  model: "gpt-4o-mini"
  max_tokens: 1000
  temperature: 0.5

embedding:
  provider: "ollama"
  model: "nomic-embed-text"

index:
  backend: "pgvector"
  database_url: "postgres://localhost:5432/koa"
  vector_dim: 768

corpus:
  dir: "corpus"
  max_chunk_words: 200

retrieval:
  top_k: 5

chat:
  max_history: 4

server:
  trust_proxy_headers: true

scraper:
  rate_limit: 1.5
  fetch_pdfs: false
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "openai", config.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.Temperature())
	assert.Equal(t, "nomic-embed-text", config.Embedding.Model)
	assert.Equal(t, "pgvector", config.Index.Backend)
	assert.Equal(t, "postgres://localhost:5432/koa", config.Index.DatabaseURL)
	assert.Equal(t, 768, config.Index.VectorDim)
	assert.Equal(t, "corpus", config.Corpus.Dir)
	assert.Equal(t, 200, config.Corpus.MaxChunkWords)
	assert.Equal(t, 5, config.Retrieval.TopK)
	assert.Equal(t, 4, config.Chat.MaxHistory)
	assert.False(t, config.FetchPDFs())
	assert.True(t, config.Server.TrustProxyHeaders)

	// Unset fields fall back to defaults
	assert.Equal(t, 16384, config.CharBudget())
	assert.Equal(t, 500, config.Retrieval.MaxDisplayChars)
	assert.Equal(t, 8000, config.Server.Port)
	assert.Equal(t, DefaultPersona, config.LLM.Persona)
	assert.Empty(t, config.Validate())
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm: [unterminated"), 0644))

	_, err := LoadConfig(configPath)
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	clearEnv(t)

	config, err := getDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, "groq", config.LLM.Provider)
	assert.Equal(t, "llama3-70b-8192", config.LLM.Model)
	assert.Equal(t, "https://api.groq.com/openai/v1", config.LLM.BaseURL)
	assert.Equal(t, "ollama", config.Embedding.Provider)
	assert.Equal(t, "file", config.Index.Backend)
	assert.Equal(t, "ScrapedData", config.Corpus.Dir)
	assert.Equal(t, 500, config.Corpus.MaxChunkWords)
	assert.Equal(t, 3, config.Retrieval.TopK)
	assert.Equal(t, 10, config.Chat.MaxHistory)
	assert.Equal(t, 10, config.Scraper.MaxWorkers)
	assert.True(t, config.FetchPDFs())
	assert.False(t, config.Server.TrustProxyHeaders)
	assert.Equal(t, 0.7, config.Temperature())
}

func TestZeroTemperatureIsKept(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  api_key: gsk-test\n  temperature: 0\n"), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, config.LLM.Temperature)
	assert.Equal(t, 0.0, config.Temperature())
	assert.Empty(t, config.Validate())
}

func TestConfigValidation(t *testing.T) {
	valid := func() Config {
		config := Config{}
		config.LLM.APIKey = "gsk-test"
		applyDefaults(&config)
		return config
	}

	tests := []struct {
		name          string
		mutate        func(c *Config)
		expectedErrs  int
		errorMessages []string
	}{
		{
			name:         "valid config",
			mutate:       func(c *Config) {},
			expectedErrs: 0,
		},
		{
			name: "missing groq key",
			mutate: func(c *Config) {
				c.LLM.APIKey = ""
			},
			expectedErrs:  1,
			errorMessages: []string{"llm.api_key: GROQ_API_KEY is required"},
		},
		{
			name: "invalid config",
			mutate: func(c *Config) {
				c.LLM.MaxTokens = 10000
				temperature := 3.0
				c.LLM.Temperature = &temperature
				c.Index.Backend = "pgvector"
				c.Retrieval.TopK = -1
			},
			expectedErrs: 4,
			errorMessages: []string{
				"llm.max_tokens: max_tokens must be between 1 and 8192",
				"llm.temperature: temperature must be between 0 and 2",
				"index.database_url: database_url is required",
				"retrieval.top_k: top_k must be positive",
			},
		},
		{
			name: "unknown providers",
			mutate: func(c *Config) {
				c.LLM.Provider = "anthropic"
				c.Embedding.Provider = "cohere"
				c.Index.Backend = "faiss"
			},
			expectedErrs: 3,
			errorMessages: []string{
				"llm.provider: unknown provider: anthropic",
				"embedding.provider: unknown provider: cohere",
				"index.backend: unknown backend: faiss",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(&config)

			errors := config.Validate()
			assert.Len(t, errors, tt.expectedErrs)

			for i, msg := range tt.errorMessages {
				assert.Contains(t, errors[i].Error(), msg)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk-env")
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("PORT", "9090")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "gsk-env", config.LLM.APIKey)
	assert.Equal(t, "http://env-ollama:11434", config.Embedding.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Index.DatabaseURL)
	assert.Equal(t, 9090, config.Server.Port)
}

func TestAPIKeyFollowsProvider(t *testing.T) {
	tests := []struct {
		name              string
		llmProvider       string
		embeddingProvider string
		configuredKey     string
		wantLLMKey        string
		wantEmbeddingKey  string
	}{
		{"default groq", "", "", "", "groq-secret", ""},
		{"groq", "groq", "ollama", "", "groq-secret", ""},
		{"openai", "openai", "", "", "openai-secret", ""},
		{"openai embeddings", "groq", "openai", "", "groq-secret", "openai-secret"},
		{"ollama needs no key", "ollama", "", "", "", ""},
		{"configured key wins", "openai", "", "sk-file", "sk-file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("GROQ_API_KEY", "groq-secret")
			t.Setenv("OPENAI_API_KEY", "openai-secret")

			config := &Config{}
			config.LLM.Provider = tt.llmProvider
			config.LLM.APIKey = tt.configuredKey
			config.Embedding.Provider = tt.embeddingProvider
			mergeWithEnv(config)

			assert.Equal(t, tt.wantLLMKey, config.LLM.APIKey)
			assert.Equal(t, tt.wantEmbeddingKey, config.Embedding.APIKey)
		})
	}
}

func TestOpenAIProviderNeverGetsGroqKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "groq-secret")
	t.Setenv("OPENAI_API_KEY", "openai-secret")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  provider: openai\n"), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "openai", config.LLM.Provider)
	assert.Equal(t, "openai-secret", config.LLM.APIKey)
}
