package moderation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/debatehub/backend/internal/config"
	"github.com/debatehub/backend/pkg/logger"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

var errEmptyCompletion = errors.New("empty completion")

// NewCompleter returns the backend client for one configured provider.
func NewCompleter(cfg config.ProviderConfig) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return newOpenAICompleter(cfg), nil
	case "azure":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("provider %s: azure requires base_url", cfg.Name)
		}
		return newAzureCompleter(cfg), nil
	case "anthropic":
		return newAnthropicCompleter(cfg), nil
	case "ollama":
		return newOllamaCompleter(cfg)
	case "gemini":
		return &geminiCompleter{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("provider %s: unsupported backend %q", cfg.Name, cfg.Provider)
	}
}

func temperatureOf(cfg config.ProviderConfig) float32 {
	if cfg.Temperature > 0 {
		return float32(cfg.Temperature)
	}
	return 0.1
}

// openaiCompleter covers OpenAI and any OpenAI-compatible endpoint.
type openaiCompleter struct {
	client *openai.Client
	cfg    config.ProviderConfig
	label  string
}

func newOpenAICompleter(cfg config.ProviderConfig) *openaiCompleter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	return &openaiCompleter{client: openai.NewClientWithConfig(clientConfig), cfg: cfg, label: "OpenAI"}
}

// Azure uses the model field as the deployment name.
func newAzureCompleter(cfg config.ProviderConfig) *openaiCompleter {
	clientConfig := openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
	return &openaiCompleter{client: openai.NewClientWithConfig(clientConfig), cfg: cfg, label: "Azure OpenAI"}
}

func (c *openaiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperatureOf(c.cfg),
	}
	if c.cfg.MaxTokens > 0 {
		req.MaxTokens = c.cfg.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s API error: %w", c.label, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", c.label)
	}

	content := resp.Choices[0].Message.Content
	logger.Debugf("[Moderation] %s response length: %d chars", c.label, len(content))
	return content, nil
}

type anthropicCompleter struct {
	client anthropic.Client
	cfg    config.ProviderConfig
}

func newAnthropicCompleter(cfg config.ProviderConfig) *anthropicCompleter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	return &anthropicCompleter{client: anthropic.NewClient(opts...), cfg: cfg}
}

func (c *anthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return "", errEmptyCompletion
	}

	logger.Debugf("[Moderation] Anthropic response length: %d chars", content.Len())
	return content.String(), nil
}

type ollamaCompleter struct {
	client *api.Client
	cfg    config.ProviderConfig
}

func newOllamaCompleter(cfg config.ProviderConfig) (*ollamaCompleter, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = "llama3"
	}
	return &ollamaCompleter{client: api.NewClient(u, http.DefaultClient), cfg: cfg}, nil
}

func (c *ollamaCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	stream := false
	var content strings.Builder
	err := c.client.Chat(ctx, &api.ChatRequest{
		Model: c.cfg.Model,
		Messages: []api.Message{
			{Role: "user", Content: prompt},
		},
		Format: []byte(`"json"`),
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": temperatureOf(c.cfg),
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("Ollama API error: %w", err)
	}

	logger.Debugf("[Moderation] Ollama response length: %d chars", content.Len())
	return content.String(), nil
}

// geminiCompleter creates its client per call because genai binds the client
// to a context.
type geminiCompleter struct {
	cfg config.ProviderConfig
}

func (c *geminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("Gemini client error: %w", err)
	}

	model := c.cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	temperature := temperatureOf(c.cfg)
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	content := resp.Text()
	if content == "" {
		return "", errEmptyCompletion
	}
	logger.Debugf("[Moderation] Gemini response length: %d chars", len(content))
	return content, nil
}
