// Package embedder turns text into vectors.
package embedder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	gemini "github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	openai "github.com/amikos-tech/chroma-go/pkg/embeddings/openai"
	"github.com/gamma-omg/rag-spo/domain"
	"github.com/gamma-omg/rag-spo/llm"
)

const (
	OpenAI  = "openai"
	Gemini  = "gemini"
	Hashing = "hashing"
)

type ProviderConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Dimension int
}

type embeddingFunc interface {
	EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error)
	EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error)
}

// NewEmbeddingFunction builds the chroma-go embedding function for the
// configured provider.
func NewEmbeddingFunction(cfg ProviderConfig) (embeddings.EmbeddingFunction, error) {
	switch cfg.Provider {
	case OpenAI:
		opts := []openai.Option{openai.WithModel(openai.EmbeddingModel(cfg.Model))}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}

		ef, err := openai.NewOpenAIEmbeddingFunction(cfg.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI embedding function: %w", err)
		}

		return ef, nil
	case Gemini:
		ef, err := gemini.NewGeminiEmbeddingFunction(
			gemini.WithAPIKey(cfg.APIKey),
			gemini.WithDefaultModel(embeddings.EmbeddingModel(cfg.Model)))
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
		}

		return ef, nil
	}

	return nil, fmt.Errorf("%w: invalid embeddings provider %q", domain.ErrInvalidConfiguration, cfg.Provider)
}

// Provider embeds text with a remote embedding model. The embedding function
// is kept in the shared model cache.
type Provider struct {
	cfg     ProviderConfig
	cache   *llm.ModelCache
	log     *slog.Logger
	newFunc func(cfg ProviderConfig) (embeddingFunc, error)
}

func NewProvider(cfg ProviderConfig, cache *llm.ModelCache, log *slog.Logger) *Provider {
	return &Provider{
		cfg:   cfg,
		cache: cache,
		log:   log,
		newFunc: func(cfg ProviderConfig) (embeddingFunc, error) {
			return NewEmbeddingFunction(cfg)
		},
	}
}

func (p *Provider) function() (embeddingFunc, error) {
	key := llm.CacheKey("embedding", map[string]any{
		"provider":   p.cfg.Provider,
		"model_name": p.cfg.Model,
		"base_url":   p.cfg.BaseURL,
	})

	return llm.Load(p.cache, key, func() (embeddingFunc, error) {
		p.log.Info("loading embedding model", slog.String("provider", p.cfg.Provider), slog.String("model", p.cfg.Model))
		return p.newFunc(p.cfg)
	})
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ef, err := p.function()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailed, err)
	}

	embs, err := ef.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailed, err)
	}

	if len(embs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingFailed, len(embs), len(texts))
	}

	vectors := make([][]float32, 0, len(embs))
	for _, e := range embs {
		v, err := p.vector(e)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}

	p.log.Debug("texts embedded", slog.Int("count", len(vectors)))
	return vectors, nil
}

func (p *Provider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	ef, err := p.function()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailed, err)
	}

	e, err := ef.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailed, err)
	}

	return p.vector(e)
}

func (p *Provider) vector(e embeddings.Embedding) ([]float32, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: empty embedding", domain.ErrEmbeddingFailed)
	}

	v := e.ContentAsFloat32()
	if p.cfg.Dimension > 0 && len(v) != p.cfg.Dimension {
		return nil, fmt.Errorf("%w: expected dimension %d, got %d", domain.ErrEmbeddingFailed, p.cfg.Dimension, len(v))
	}

	return v, nil
}
