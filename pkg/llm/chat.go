package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/koa/internal/models"
)

var (
	ErrNoChoices       = errors.New("completion returned no choices")
	ErrUnknownProvider = errors.New("unknown provider")
)

const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	groqBaseURL = "https://api.groq.com/openai/v1"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// ChatEngine submits conversation histories to a hosted or local LLM.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	config = chatDefaults(config)
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	}

	var (
		model llms.Model
		err   error
	)
	switch config.Provider {
	case ProviderGroq, ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(config.APIKey),
			openai.WithModel(config.Model),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		model, err = openai.New(opts...)
	case ProviderOllama:
		model, err = ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(config, model), nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(config ChatConfig, model llms.Model) *ChatEngine {
	return &ChatEngine{
		config: chatDefaults(config),
		llm:    model,
	}
}

func chatDefaults(config ChatConfig) ChatConfig {
	if config.Provider == "" {
		config.Provider = ProviderGroq
	}
	if config.Model == "" {
		switch config.Provider {
		case ProviderOllama:
			config.Model = "llama3"
		case ProviderOpenAI:
			config.Model = "gpt-4o-mini"
		default:
			config.Model = "llama3-70b-8192"
		}
	}
	if config.BaseURL == "" {
		switch config.Provider {
		case ProviderGroq:
			config.BaseURL = groqBaseURL
		case ProviderOllama:
			config.BaseURL = "http://localhost:11434"
		}
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}
	return config
}

// Complete sends the ordered turns and returns the first choice's text. No retries.
func (ce *ChatEngine) Complete(ctx context.Context, turns []models.Turn) (string, error) {
	content, err := toMessages(turns)
	if err != nil {
		return "", err
	}

	opts := []llms.CallOption{
		llms.WithModel(ce.config.Model),
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
	}

	response, err := ce.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", ErrNoChoices
	}

	return response.Choices[0].Content, nil
}

func (ce *ChatEngine) Model() string {
	return ce.config.Model
}

func toMessages(turns []models.Turn) ([]llms.MessageContent, error) {
	content := make([]llms.MessageContent, 0, len(turns))
	for _, turn := range turns {
		var role schema.ChatMessageType
		switch turn.Role {
		case models.RoleSystem:
			role = schema.ChatMessageTypeSystem
		case models.RoleUser:
			role = schema.ChatMessageTypeHuman
		case models.RoleAssistant:
			role = schema.ChatMessageTypeAI
		default:
			return nil, fmt.Errorf("unsupported role %q", turn.Role)
		}
		content = append(content, llms.TextParts(role, turn.Content))
	}
	return content, nil
}
