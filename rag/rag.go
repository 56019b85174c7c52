// Package rag wires the gateways into the indexing and search pipelines.
package rag

import (
	"context"

	"github.com/gamma-omg/rag-spo/domain"
)

// DocumentSource lists documents and fetches their text. An empty siteID
// selects the source's default site.
type DocumentSource interface {
	ListDocuments(ctx context.Context, siteID string) ([]domain.Document, error)
	GetContent(ctx context.Context, siteID, documentID string) (string, error)
	GetMetadata(ctx context.Context, siteID, documentID string) (domain.Document, error)
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []domain.Point) error
	Query(ctx context.Context, vector []float32, limit int) ([]domain.SearchResult, error)
	DeleteDocument(ctx context.Context, documentID string) error
	// DocumentIDs lists the distinct document ids that have points.
	DocumentIDs(ctx context.Context) ([]string, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// CannedAnswerer is implemented by generators that answer from a template
// without calling a model.
type CannedAnswerer interface {
	CannedAnswer(query string, sources []domain.Source) string
}
