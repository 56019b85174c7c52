package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gamma-omg/rag-spo/chunker"
	"github.com/gamma-omg/rag-spo/domain"
	"github.com/gamma-omg/rag-spo/vectorstore"
	"gopkg.in/yaml.v3"
)

const (
	sourceGraph      = "graph"
	sourceCanned     = "canned"
	sourceFilesystem = "filesystem"

	storeQdrant = "qdrant"
	storeChroma = "chroma"
	storeMemory = "memory"
)

type Config struct {
	Log struct {
		File   string `yaml:"file"`
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	DemoMode     bool   `yaml:"demo_mode"`
	ServerAddr   string `yaml:"server_addr"`
	MCPAddr      string `yaml:"mcp_addr"`
	Source       string `yaml:"source"`
	DocRoot      string `yaml:"doc_root"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	TopK         int    `yaml:"top_k"`
	CacheSize    int    `yaml:"model_cache_size"`
	Watch        struct {
		DebounceMs int `yaml:"debounce_ms"`
	} `yaml:"watch"`
	SharePoint struct {
		TenantID     string  `yaml:"tenant_id"`
		ClientID     string  `yaml:"client_id"`
		ClientSecret string  `yaml:"client_secret"`
		SiteID       string  `yaml:"site_id"`
		GraphURL     string  `yaml:"graph_url"`
		RateLimit    float64 `yaml:"rate_limit"`
		Burst        int     `yaml:"burst"`
	} `yaml:"sharepoint"`
	Embedding struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		ApiKey    string `yaml:"api_key"`
		BaseURL   string `yaml:"base_url"`
		Dimension int    `yaml:"dimension"`
	} `yaml:"embedding"`
	VectorStore struct {
		Backend     string `yaml:"backend"`
		URL         string `yaml:"url"`
		ApiKey      string `yaml:"api_key"`
		Collection  string `yaml:"collection"`
		Distance    string `yaml:"distance"`
		RequestSize int    `yaml:"request_size"`
	} `yaml:"vector_store"`
	LLM struct {
		Provider       string  `yaml:"provider"`
		Model          string  `yaml:"model"`
		ApiKey         string  `yaml:"api_key"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float64 `yaml:"temperature"`
		TopP           float64 `yaml:"top_p"`
		AnswerLanguage string  `yaml:"answer_language"`
	} `yaml:"llm"`
}

func defaultConfig() *Config {
	cfg := &Config{
		ServerAddr:   ":8000",
		MCPAddr:      "localhost:8080",
		Source:       sourceGraph,
		ChunkSize:    chunker.DefaultChunkSize,
		ChunkOverlap: chunker.DefaultChunkOverlap,
		TopK:         5,
		CacheSize:    10,
	}
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Watch.DebounceMs = 500
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.Model = "text-embedding-3-small"
	cfg.Embedding.Dimension = 1536
	cfg.VectorStore.Backend = storeQdrant
	cfg.VectorStore.URL = "http://localhost:6333"
	cfg.VectorStore.Collection = "spo_docs"
	cfg.VectorStore.Distance = string(vectorstore.Cosine)
	cfg.LLM.Provider = "none"
	cfg.LLM.AnswerLanguage = "English"
	return cfg
}

// readConfig loads defaults, then the YAML file when it exists, then
// environment overrides.
func readConfig(cfgPath string) (*Config, error) {
	cfg := defaultConfig()

	cfgFile, err := os.Open(cfgPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("unable to open config file: %w", err)
	default:
		defer cfgFile.Close()

		err = yaml.NewDecoder(cfgFile).Decode(cfg)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("unable to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"TENANT_ID":          &c.SharePoint.TenantID,
		"CLIENT_ID":          &c.SharePoint.ClientID,
		"CLIENT_SECRET":      &c.SharePoint.ClientSecret,
		"SHAREPOINT_SITE_ID": &c.SharePoint.SiteID,
		"QDRANT_API_KEY":     &c.VectorStore.ApiKey,
		"OPENAI_BASE_URL":    &c.Embedding.BaseURL,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("QDRANT_URL"); ok && v != "" && c.VectorStore.Backend == storeQdrant {
		c.VectorStore.URL = v
	}
	if v, ok := lookup("CHROMA_URL"); ok && v != "" && c.VectorStore.Backend == storeChroma {
		c.VectorStore.URL = v
	}

	if c.Embedding.ApiKey == "" {
		c.Embedding.ApiKey = providerKey(lookup, c.Embedding.Provider)
	}
	if c.LLM.ApiKey == "" {
		c.LLM.ApiKey = providerKey(lookup, c.LLM.Provider)
	}

	if v, ok := lookup("DEMO_MODE"); ok && v != "" {
		demo, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: DEMO_MODE: %w", domain.ErrInvalidConfiguration, err)
		}
		c.DemoMode = demo
	}

	return nil
}

func providerKey(lookup func(string) (string, bool), provider string) string {
	names := map[string]string{
		"openai":    "OPENAI_API_KEY",
		"gemini":    "GEMINI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
	}

	name, ok := names[provider]
	if !ok {
		return ""
	}
	v, _ := lookup(name)
	return v
}

func (c *Config) Validate() error {
	if err := chunker.Validate(c.ChunkSize, c.ChunkOverlap); err != nil {
		return err
	}

	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: top_k must be between 1 and 50, got %d", domain.ErrInvalidConfiguration, c.TopK)
	}

	if _, err := vectorstore.ParseDistance(c.VectorStore.Distance); err != nil {
		return err
	}

	switch c.Source {
	case sourceGraph, sourceCanned:
	case sourceFilesystem:
		if c.DocRoot == "" {
			return fmt.Errorf("%w: doc_root is required for the filesystem source", domain.ErrInvalidConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown source %q", domain.ErrInvalidConfiguration, c.Source)
	}

	switch c.VectorStore.Backend {
	case storeQdrant, storeChroma, storeMemory:
	default:
		return fmt.Errorf("%w: unknown vector store %q", domain.ErrInvalidConfiguration, c.VectorStore.Backend)
	}

	return nil
}

func (c *Config) logLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
