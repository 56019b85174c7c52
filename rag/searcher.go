package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gamma-omg/rag-spo/domain"
)

const (
	DefaultTopK = 5
	MaxTopK     = 50

	NoResultsAnswer = "No relevant documents were found. Try searching with different keywords."
)

type SearcherConfig struct {
	// AnswerLanguage is the language the model is asked to answer in.
	AnswerLanguage string
}

type Searcher struct {
	log       *slog.Logger
	embedder  Embedder
	store     VectorStore
	generator Generator
	cfg       SearcherConfig
}

// NewSearcher creates a searcher. generator may be nil when no chat model is
// configured; answers then fall back to a summary of the matches.
func NewSearcher(log *slog.Logger, embedder Embedder, store VectorStore, generator Generator, cfg SearcherConfig) *Searcher {
	if cfg.AnswerLanguage == "" {
		cfg.AnswerLanguage = "English"
	}

	return &Searcher{
		log:       log,
		embedder:  embedder,
		store:     store,
		generator: generator,
		cfg:       cfg,
	}
}

// Search returns the topK nearest chunks in the order the store ranks them.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	vector, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.store.Query(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}

	s.log.Info("search finished", slog.String("query", query), slog.Int("top_k", topK), slog.Int("results", len(results)))
	return results, nil
}

func (s *Searcher) AnswerWithSources(ctx context.Context, query string, topK int) (domain.SearchResponse, error) {
	results, err := s.Search(ctx, query, topK)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	sources := make([]domain.Source, 0, len(results))
	chunks := make([]string, 0, len(results))
	for _, r := range results {
		sources = append(sources, toSource(r))
		chunks = append(chunks, r.Payload.Text)
	}

	return domain.SearchResponse{
		Answer:  s.answer(ctx, query, sources, chunks),
		Sources: sources,
		Query:   query,
	}, nil
}

func (s *Searcher) answer(ctx context.Context, query string, sources []domain.Source, chunks []string) string {
	if len(sources) == 0 {
		return NoResultsAnswer
	}

	if canned, ok := s.generator.(CannedAnswerer); ok {
		return canned.CannedAnswer(query, sources)
	}

	if s.generator == nil {
		return fmt.Sprintf("Answer generation is not available. Check the llm configuration.\n\n"+
			"Found %d relevant documents.", len(sources))
	}

	prompt := buildPrompt(query, buildContext(sources, chunks), s.cfg.AnswerLanguage)
	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.log.Error("failed to generate answer", slog.String("query", query), slog.Any("err", err))
		return fmt.Sprintf("An error occurred while generating the answer: %s\n\n"+
			"Found %d relevant documents for %q.\n"+
			"Please check the related documents.", err, len(sources), query)
	}

	return answer
}

func toSource(r domain.SearchResult) domain.Source {
	title := r.Payload.DocumentName
	if title == "" {
		title = "Unknown"
	}

	return domain.Source{
		FileTitle:    title,
		SectionTitle: "",
		ChunkIndex:   r.Payload.ChunkIndex,
		DownloadURL:  r.Payload.Source.WebURL,
		DocumentID:   r.Payload.DocumentID,
		Score:        r.Score,
	}
}
