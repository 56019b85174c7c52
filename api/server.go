// Package api exposes the search and indexing pipelines over HTTP.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gamma-omg/rag-spo/domain"
	"github.com/go-playground/validator/v10"
)

const Prefix = "/api/rag"

type Searcher interface {
	AnswerWithSources(ctx context.Context, query string, topK int) (domain.SearchResponse, error)
}

type Indexer interface {
	IndexDocument(ctx context.Context, documentID string) (domain.IndexResult, error)
	Reindex(ctx context.Context, documentID string) (domain.IndexResult, error)
	IndexAll(ctx context.Context, siteID string) (domain.IndexAllResult, error)
}

// Documents gives access to the files behind indexed chunks.
type Documents interface {
	GetMetadata(ctx context.Context, siteID, documentID string) (domain.Document, error)
	Download(ctx context.Context, documentID string) (io.ReadCloser, string, string, error)
}

type Config struct {
	// Demo marks responses that come from the canned document set.
	Demo bool
	// DefaultTopK is used when a search request has no top_k. Zero means 5.
	DefaultTopK int
}

type Server struct {
	cfg       Config
	log       *slog.Logger
	searcher  Searcher
	indexer   Indexer
	documents Documents
	validate  *validator.Validate
	routes    []string
}

func NewServer(cfg Config, log *slog.Logger, searcher Searcher, indexer Indexer, documents Documents) *Server {
	if cfg.DefaultTopK == 0 {
		cfg.DefaultTopK = defaultTopK
	}

	return &Server{
		cfg:       cfg,
		log:       log,
		searcher:  searcher,
		indexer:   indexer,
		documents: documents,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Handler returns the routed handler wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		s.routes = append(s.routes, pattern)
		mux.HandleFunc(pattern, h)
	}

	handle("GET /{$}", s.handleRoot)
	handle("GET /health", s.handleHealth)
	handle("GET /docs", s.handleDocs)
	handle("POST "+Prefix+"/search", s.handleSearch)
	handle("POST "+Prefix+"/index", s.handleIndex)
	handle("POST "+Prefix+"/index-all", s.handleIndexAll)
	handle("GET "+Prefix+"/health", s.handleRagHealth)
	handle("GET "+Prefix+"/download/{document_id}", s.handleDownload)
	handle("GET "+Prefix+"/document/{document_id}/info", s.handleDocumentInfo)

	return withCORS(s.withLogging(mux))
}
