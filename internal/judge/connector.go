package judge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider identifies the judge's LLM backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderClaude Provider = "claude"
	ProviderOllama Provider = "ollama"
)

// ModelConfig holds per-model generation parameters.
type ModelConfig struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Model       string  `json:"model,omitempty"`
}

// ConnectorOptions configures a Connector.
type ConnectorOptions struct {
	Provider    Provider    `json:"provider"`
	APIKey      string      `json:"api_key"`
	BaseURL     string      `json:"base_url,omitempty"`
	ModelConfig ModelConfig `json:"model_config,omitempty"`
}

// Connector is a connection to one LLM provider.
type Connector struct {
	provider Provider
	llm      llms.Model
	options  ConnectorOptions
}

// NewConnector creates a connector for the configured provider.
func NewConnector(ctx context.Context, options ConnectorOptions) (*Connector, error) {
	var model llms.Model
	var err error

	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.ModelConfig.Model).
		Float64("temperature", options.ModelConfig.Temperature).
		Msg("Creating judge connector")

	switch options.Provider {
	case ProviderOpenAI:
		model, err = createOpenAIModel(options)
	case ProviderGemini:
		model, err = createGeminiModel(ctx, options)
	case ProviderClaude:
		model, err = createAnthropicModel(options)
	case ProviderOllama:
		model, err = createOllamaModel(options)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}

	return &Connector{
		provider: options.Provider,
		llm:      model,
		options:  options,
	}, nil
}

func createOpenAIModel(options ConnectorOptions) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(options.ModelConfig.Model),
		openai.WithToken(options.APIKey),
	}
	if options.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(options.BaseURL))
	}
	return openai.New(opts...)
}

func createGeminiModel(ctx context.Context, options ConnectorOptions) (llms.Model, error) {
	return googleai.New(ctx, googleai.WithAPIKey(options.APIKey))
}

func createAnthropicModel(options ConnectorOptions) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithToken(options.APIKey),
		anthropic.WithModel(options.ModelConfig.Model),
	}
	return anthropic.New(opts...)
}

func createOllamaModel(options ConnectorOptions) (llms.Model, error) {
	if options.BaseURL == "" {
		options.BaseURL = "http://localhost:11434"
	}
	opts := []ollama.Option{
		ollama.WithServerURL(options.BaseURL),
		ollama.WithModel(options.ModelConfig.Model),
	}
	return ollama.New(opts...)
}

// Call invokes the model with a single prompt.
func (c *Connector) Call(ctx context.Context, input string, options ...llms.CallOption) (string, error) {
	callOptions := []llms.CallOption{
		llms.WithTemperature(c.options.ModelConfig.Temperature),
	}
	if c.options.ModelConfig.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(c.options.ModelConfig.MaxTokens))
	}
	// Gemini needs the model named per call.
	if c.provider == ProviderGemini && c.options.ModelConfig.Model != "" {
		callOptions = append(callOptions, llms.WithModel(c.options.ModelConfig.Model))
	}
	callOptions = append(callOptions, options...)

	return llms.GenerateFromSinglePrompt(ctx, c.llm, input, callOptions...)
}

// Model returns the configured model name.
func (c *Connector) Model() string {
	return c.options.ModelConfig.Model
}
