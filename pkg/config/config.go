package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		Provider    string  `yaml:"provider"`
		BaseURL     string  `yaml:"base_url"`
		APIKey      string  `yaml:"api_key"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature *float64 `yaml:"temperature"`
		Persona     string  `yaml:"persona"`
	} `yaml:"llm"`

	Embedding struct {
		Provider  string `yaml:"provider"`
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		Model     string `yaml:"model"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"embedding"`

	Index struct {
		Backend      string `yaml:"backend"`
		IndexPath    string `yaml:"index_path"`
		MetadataPath string `yaml:"metadata_path"`
		DatabaseURL  string `yaml:"database_url"`
		TableName    string `yaml:"table_name"`
		VectorDim    int    `yaml:"vector_dim"`
	} `yaml:"index"`

	Corpus struct {
		Dir           string `yaml:"dir"`
		MaxChunkWords int    `yaml:"max_chunk_words"`
	} `yaml:"corpus"`

	Retrieval struct {
		TopK                int `yaml:"top_k"`
		MaxTokensPerRequest int `yaml:"max_tokens_per_request"`
		CharsPerToken       int `yaml:"chars_per_token"`
		MaxDisplayChars     int `yaml:"max_display_chars"`
	} `yaml:"retrieval"`

	Chat struct {
		MaxHistory int `yaml:"max_history"`
	} `yaml:"chat"`

	Server struct {
		Host              string `yaml:"host"`
		Port              int    `yaml:"port"`
		TrustProxyHeaders bool   `yaml:"trust_proxy_headers"`
	} `yaml:"server"`

	Scraper struct {
		DomainsDir string  `yaml:"domains_dir"`
		RateLimit  float64 `yaml:"rate_limit"`
		MaxWorkers int     `yaml:"max_workers"`
		TimeoutSec int     `yaml:"timeout_sec"`
		FetchPDFs  *bool   `yaml:"fetch_pdfs"`
	} `yaml:"scraper"`

	Log struct {
		Debug bool `yaml:"debug"`
	} `yaml:"log"`
}

// CharBudget is the character allowance for assembled context.
func (c *Config) CharBudget() int {
	return c.Retrieval.MaxTokensPerRequest * c.Retrieval.CharsPerToken
}

// Temperature is the sampling temperature; 0 is a valid setting, unset means 0.7.
func (c *Config) Temperature() float64 {
	if c.LLM.Temperature != nil {
		return *c.LLM.Temperature
	}
	return defaultTemperature
}

// FetchPDFs reports whether the scraper follows PDF links; defaults to true when unset.
func (c *Config) FetchPDFs() bool {
	if c.Scraper.FetchPDFs != nil {
		return *c.Scraper.FetchPDFs
	}
	return true
}

const (
	defaultProvider    = "groq"
	defaultTemperature = 0.7
)

const DefaultPersona = "You are a helpful assistant designed to provide information exclusively from credible " +
	"Hawaii government websites. Your responses should be accurate, concise, and strictly focused " +
	"on topics related to Hawaii government information. Do not provide information outside this scope. " +
	"Your name is Koa and you are designed to be as helpful as possible. Do not say anything about " +
	"'based on provided context'. Simply use the context and provide your final answer to the user."

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/koa/config.yaml"),
			"/etc/koa/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = defaultProvider
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "llama3-70b-8192"
	}
	if config.LLM.BaseURL == "" {
		switch config.LLM.Provider {
		case "groq":
			config.LLM.BaseURL = "https://api.groq.com/openai/v1"
		case "ollama":
			config.LLM.BaseURL = "http://localhost:11434"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1024
	}
	if config.LLM.Persona == "" {
		config.LLM.Persona = DefaultPersona
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "ollama"
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "all-minilm"
	}
	if config.Embedding.BaseURL == "" && config.Embedding.Provider == "ollama" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 64
	}

	if config.Index.Backend == "" {
		config.Index.Backend = "file"
	}
	if config.Index.IndexPath == "" {
		config.Index.IndexPath = "data/vector_store.index"
	}
	if config.Index.MetadataPath == "" {
		config.Index.MetadataPath = "data/metadata.json"
	}
	if config.Index.TableName == "" {
		config.Index.TableName = "koa_chunks"
	}
	if config.Index.VectorDim == 0 {
		config.Index.VectorDim = 384
	}

	if config.Corpus.Dir == "" {
		config.Corpus.Dir = "ScrapedData"
	}
	if config.Corpus.MaxChunkWords == 0 {
		config.Corpus.MaxChunkWords = 500
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 3
	}
	if config.Retrieval.MaxTokensPerRequest == 0 {
		config.Retrieval.MaxTokensPerRequest = 4096
	}
	if config.Retrieval.CharsPerToken == 0 {
		config.Retrieval.CharsPerToken = 4
	}
	if config.Retrieval.MaxDisplayChars == 0 {
		config.Retrieval.MaxDisplayChars = 500
	}

	if config.Chat.MaxHistory == 0 {
		config.Chat.MaxHistory = 10
	}

	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}

	if config.Scraper.DomainsDir == "" {
		config.Scraper.DomainsDir = "domains"
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.MaxWorkers == 0 {
		config.Scraper.MaxWorkers = 10
	}
	if config.Scraper.TimeoutSec == 0 {
		config.Scraper.TimeoutSec = 15
	}
}

func mergeWithEnv(config *Config) {
	provider := config.LLM.Provider
	if provider == "" {
		provider = defaultProvider
	}
	if config.LLM.APIKey == "" {
		switch provider {
		case "groq":
			config.LLM.APIKey = os.Getenv("GROQ_API_KEY")
		case "openai":
			config.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if config.Embedding.APIKey == "" && config.Embedding.Provider == "openai" {
		config.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = baseURL
		}
		if config.Embedding.Provider == "" || config.Embedding.Provider == "ollama" {
			config.Embedding.BaseURL = baseURL
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Index.DatabaseURL = dbURL
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
}
