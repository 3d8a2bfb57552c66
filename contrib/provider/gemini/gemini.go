package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/sweetpotato0/coverwise/contrib/provider"
	errorskg "github.com/sweetpotato0/coverwise/errors"
	"google.golang.org/api/option"
)

// DefaultModel is the model used when Config.Model is empty.
const DefaultModel = "gemini-flash-latest"

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       DefaultModel,
		MaxTokens:   2048,
		Temperature: 0.4,
	}
}

// Provider implements provider.Completer with the Gemini SDK. The client is
// created on first use; a failed attempt is retried by the next call.
type Provider struct {
	config *Config

	mu     sync.Mutex
	client *genai.Client
}

var _ provider.Completer = (*Provider)(nil)

// New creates a new Gemini provider
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	return &Provider{config: config}
}

// Name returns "gemini".
func (p *Provider) Name() string { return "gemini" }

func (p *Provider) connect(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.config.APIKey))
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

// Complete sends the prompt and joins the text parts of the first candidate.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (string, error) {
	if strings.TrimSpace(p.config.APIKey) == "" {
		return "", fmt.Errorf("gemini api key not set: %w", errorskg.ErrMissingConfiguration)
	}
	client, err := p.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}

	model := client.GenerativeModel(p.config.Model)
	if p.config.Temperature > 0 {
		model.SetTemperature(p.config.Temperature)
	}
	if p.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(p.config.MaxTokens)
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

// Close releases the client. A later Complete creates a new one.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}
