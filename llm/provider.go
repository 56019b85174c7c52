// Package llm holds the chat model side of the system: the shared model
// cache and the generator variants.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/gamma-omg/rag-spo/domain"
	"google.golang.org/genai"
)

const (
	Anthropic = "anthropic"
	Gemini    = "gemini"
	None      = "none"

	DefaultMaxTokens   = 8096
	DefaultTemperature = 0.3
	DefaultTopP        = 0.8
)

type ProviderConfig struct {
	Backend     string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

func (c ProviderConfig) withDefaults() ProviderConfig {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.TopP == 0 {
		c.TopP = DefaultTopP
	}
	return c
}

func (c ProviderConfig) cacheKey() string {
	return CacheKey("llm", map[string]any{
		"backend":     c.Backend,
		"model_name":  c.Model,
		"max_tokens":  c.MaxTokens,
		"temperature": c.Temperature,
		"top_p":       c.TopP,
	})
}

type chatModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Provider generates answers with a remote chat model. The model client is
// built on first use and shared through the cache.
type Provider struct {
	cfg      ProviderConfig
	cache    *ModelCache
	log      *slog.Logger
	newModel func(ctx context.Context, cfg ProviderConfig) (chatModel, error)
}

func NewProvider(cfg ProviderConfig, cache *ModelCache, log *slog.Logger) (*Provider, error) {
	switch cfg.Backend {
	case Anthropic, Gemini:
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", domain.ErrInvalidConfiguration, cfg.Backend)
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s api key is not set", domain.ErrGenerationUnavailable, cfg.Backend)
	}

	return &Provider{
		cfg:      cfg.withDefaults(),
		cache:    cache,
		log:      log,
		newModel: newChatModel,
	}, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	model, err := Load(p.cache, p.cfg.cacheKey(), func() (chatModel, error) {
		p.log.Info("loading chat model", slog.String("backend", p.cfg.Backend), slog.String("model", p.cfg.Model))
		return p.newModel(ctx, p.cfg)
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to load chat model: %w", domain.ErrGenerationFailed, err)
	}

	answer, err := model.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}

	p.log.Info("answer generated", slog.Int("chars", len(answer)))
	return answer, nil
}

func newChatModel(ctx context.Context, cfg ProviderConfig) (chatModel, error) {
	switch cfg.Backend {
	case Anthropic:
		return &anthropicModel{
			client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
			cfg:    cfg,
		}, nil
	case Gemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		return &geminiModel{client: client, cfg: cfg}, nil
	}

	return nil, fmt.Errorf("unknown llm provider %q", cfg.Backend)
}

type anthropicModel struct {
	client anthropic.Client
	cfg    ProviderConfig
}

func (m *anthropicModel) Complete(ctx context.Context, prompt string) (string, error) {
	// Claude models reject temperature and top_p in the same request.
	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(m.cfg.Model),
		MaxTokens:   int64(m.cfg.MaxTokens),
		Temperature: anthropic.Float(m.cfg.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude api call failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("no response generated from claude api")
	}

	return sb.String(), nil
}

type geminiModel struct {
	client *genai.Client
	cfg    ProviderConfig
}

func (m *geminiModel) Complete(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(m.cfg.Temperature)),
		TopP:            genai.Ptr(float32(m.cfg.TopP)),
		MaxOutputTokens: int32(m.cfg.MaxTokens),
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := m.client.Models.GenerateContent(ctx, m.cfg.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	var sb strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				sb.WriteString(part.Text)
			}
			if sb.Len() > 0 {
				break
			}
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("no response generated from gemini")
	}

	return sb.String(), nil
}
