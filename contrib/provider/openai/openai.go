package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/sweetpotato0/coverwise/contrib/provider"
	errorskg "github.com/sweetpotato0/coverwise/errors"
)

// Config holds OpenAI provider configuration
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default OpenAI configuration
func DefaultConfig() *Config {
	return &Config{
		Model:       "gpt-4o-mini",
		MaxTokens:   2000,
		Temperature: 0.4,
	}
}

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// Provider implements provider.Completer with the OpenAI chat completions API.
type Provider struct {
	name   string
	config *Config
	client openai.Client
}

var _ provider.Completer = (*Provider)(nil)

// New creates a new OpenAI provider using official SDK
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	return &Provider{
		name:   "openai",
		config: config,
		client: openai.NewClient(options...),
	}
}

// NewGroq creates a provider for Groq's OpenAI-compatible API.
func NewGroq(apiKey, model string) *Provider {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	cfg := DefaultConfig()
	cfg.APIKey = apiKey
	cfg.BaseURL = GroqBaseURL
	cfg.Model = model
	p := New(cfg)
	p.name = "groq"
	return p
}

// Name returns the backend name.
func (p *Provider) Name() string { return p.name }

// Complete sends a system and a user message and returns the first choice.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (string, error) {
	if strings.TrimSpace(p.config.APIKey) == "" {
		return "", fmt.Errorf("openai api key not set: %w", errorskg.ErrMissingConfiguration)
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.config.Model),
		Messages: messages,
	}
	if p.config.Temperature > 0 {
		params.Temperature = param.NewOpt(p.config.Temperature)
	}
	if p.config.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(p.config.MaxTokens)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
