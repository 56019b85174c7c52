package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gamma-omg/rag-spo/docsource"
	"github.com/gamma-omg/rag-spo/domain"
	"github.com/gamma-omg/rag-spo/embedder"
	"github.com/gamma-omg/rag-spo/llm"
	"github.com/gamma-omg/rag-spo/rag"
	"github.com/gamma-omg/rag-spo/readers"
	"github.com/gamma-omg/rag-spo/vectorstore"
	"github.com/joho/godotenv"
)

// documentSource is what the commands need from a document source beyond
// the indexing pipeline.
type documentSource interface {
	rag.DocumentSource
	Download(ctx context.Context, documentID string) (io.ReadCloser, string, string, error)
}

type app struct {
	cfg      *Config
	log      *slog.Logger
	closeLog func() error
	cache    *llm.ModelCache
	source   documentSource
	store    rag.VectorStore
	indexer  *rag.Indexer
	searcher *rag.Searcher
}

func newLogger(cfg *Config) (*slog.Logger, func() error, error) {
	var w io.Writer = os.Stderr
	closer := func() error { return nil }

	if cfg.Log.File != "" {
		logFile, err := os.OpenFile(cfg.Log.File, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = logFile
		closer = logFile.Close
	}

	opts := &slog.HandlerOptions{Level: cfg.logLevel()}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), closer, nil
	}

	return slog.New(slog.NewJSONHandler(w, opts)), closer, nil
}

func newApp(cfgPath string, overrides ...func(*Config)) (*app, error) {
	_ = godotenv.Load()

	cfg, err := readConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	if len(overrides) > 0 {
		for _, o := range overrides {
			o(cfg)
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      logger,
		closeLog: closeLog,
		cache:    llm.NewModelCache(cfg.CacheSize),
	}

	if err := a.init(); err != nil {
		closeLog()
		return nil, err
	}

	return a, nil
}

func (a *app) init() error {
	cfg := a.cfg
	if cfg.DemoMode {
		a.log.Info("running in demo mode: canned documents, offline embeddings and in-memory vectors")
	}

	source, err := a.newSource()
	if err != nil {
		return err
	}
	a.source = source

	emb, err := a.newEmbedder()
	if err != nil {
		return err
	}

	store, err := a.newStore()
	if err != nil {
		return err
	}
	a.store = store

	indexer, err := rag.NewIndexer(a.log.With("component", "indexer"), source, emb, store, rag.IndexerConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})
	if err != nil {
		return err
	}
	a.indexer = indexer

	gen, err := a.newGenerator()
	if err != nil {
		return err
	}

	a.searcher = rag.NewSearcher(a.log.With("component", "searcher"), emb, store, gen, rag.SearcherConfig{
		AnswerLanguage: cfg.LLM.AnswerLanguage,
	})

	return nil
}

func (a *app) newSource() (documentSource, error) {
	cfg := a.cfg
	if cfg.DemoMode || cfg.Source == sourceCanned {
		return docsource.Canned{}, nil
	}

	log := a.log.With("component", "docsource")
	if cfg.Source == sourceFilesystem {
		return docsource.NewFilesystem(cfg.DocRoot, readers.Default(), log)
	}

	return docsource.NewGraph(docsource.GraphConfig{
		TenantID:          cfg.SharePoint.TenantID,
		ClientID:          cfg.SharePoint.ClientID,
		ClientSecret:      cfg.SharePoint.ClientSecret,
		SiteID:            cfg.SharePoint.SiteID,
		GraphURL:          cfg.SharePoint.GraphURL,
		RequestsPerSecond: cfg.SharePoint.RateLimit,
		Burst:             cfg.SharePoint.Burst,
	}, readers.Default(), log)
}

func (a *app) newEmbedder() (rag.Embedder, error) {
	cfg := a.cfg
	if cfg.DemoMode || cfg.Embedding.Provider == embedder.Hashing {
		return embedder.NewHashingEmbedder(cfg.Embedding.Dimension), nil
	}

	if cfg.Embedding.ApiKey == "" {
		return nil, fmt.Errorf("%s embeddings require an api key", cfg.Embedding.Provider)
	}

	return embedder.NewProvider(a.embeddingConfig(), a.cache, a.log.With("component", "embedder")), nil
}

func (a *app) embeddingConfig() embedder.ProviderConfig {
	return embedder.ProviderConfig{
		Provider:  a.cfg.Embedding.Provider,
		Model:     a.cfg.Embedding.Model,
		APIKey:    a.cfg.Embedding.ApiKey,
		BaseURL:   a.cfg.Embedding.BaseURL,
		Dimension: a.cfg.Embedding.Dimension,
	}
}

func (a *app) newStore() (rag.VectorStore, error) {
	cfg := a.cfg

	distance, err := vectorstore.ParseDistance(cfg.VectorStore.Distance)
	if err != nil {
		return nil, err
	}
	collection := vectorstore.Collection{
		Name:       cfg.VectorStore.Collection,
		VectorSize: cfg.Embedding.Dimension,
		Distance:   distance,
	}

	if cfg.DemoMode {
		return vectorstore.NewMemoryStore(collection), nil
	}

	switch cfg.VectorStore.Backend {
	case storeMemory:
		return vectorstore.NewMemoryStore(collection), nil
	case storeChroma:
		chromaCfg := vectorstore.ChromaConfig{
			BaseURL:     cfg.VectorStore.URL,
			Collection:  collection,
			RequestSize: cfg.VectorStore.RequestSize,
		}
		if cfg.Embedding.Provider != embedder.Hashing {
			ef, err := embedder.NewEmbeddingFunction(a.embeddingConfig())
			if err != nil {
				return nil, err
			}
			chromaCfg.EmbeddingFunc = ef
		}
		return vectorstore.NewChromaStore(chromaCfg)
	}

	return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
		URL:        cfg.VectorStore.URL,
		APIKey:     cfg.VectorStore.ApiKey,
		Collection: collection,
	}), nil
}

// newGenerator returns nil when no chat model is configured.
func (a *app) newGenerator() (rag.Generator, error) {
	cfg := a.cfg
	if cfg.DemoMode {
		return llm.Canned{}, nil
	}

	if cfg.LLM.Provider == "" || cfg.LLM.Provider == llm.None {
		a.log.Warn("no chat model configured, answers will list the matches only")
		return nil, nil
	}

	gen, err := llm.NewProvider(llm.ProviderConfig{
		Backend:     cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.ApiKey,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
	}, a.cache, a.log.With("component", "llm"))
	if errors.Is(err, domain.ErrGenerationUnavailable) {
		a.log.Warn("chat model has no api key, answers will list the matches only", "provider", cfg.LLM.Provider)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return gen, nil
}

// prepare makes sure the collection exists. In demo mode the in-memory store
// is filled with the canned documents.
func (a *app) prepare(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}

	if a.cfg.DemoMode {
		res, err := a.indexer.IndexAll(ctx, "")
		if err != nil {
			return fmt.Errorf("failed to index demo documents: %w", err)
		}
		a.log.Info("demo documents indexed", "documents", res.TotalDocuments, "chunks", res.TotalChunks)
	}

	return nil
}

func (a *app) Close() error {
	return a.closeLog()
}
