package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/gamma-omg/rag-spo/domain"
	"github.com/stretchr/testify/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	docs     []domain.Document
	contents map[string]string
	failing  map[string]bool
	listErr  error
	sites    []string
}

func (s *fakeSource) ListDocuments(ctx context.Context, siteID string) ([]domain.Document, error) {
	s.sites = append(s.sites, siteID)
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.docs, nil
}

func (s *fakeSource) GetContent(ctx context.Context, siteID, documentID string) (string, error) {
	if s.failing[documentID] {
		return "", fmt.Errorf("%w: download failed", domain.ErrUpstreamUnavailable)
	}
	c, ok := s.contents[documentID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return c, nil
}

func (s *fakeSource) GetMetadata(ctx context.Context, siteID, documentID string) (domain.Document, error) {
	for _, d := range s.docs {
		if d.ID == documentID {
			return d, nil
		}
	}
	return domain.Document{ID: documentID}, nil
}

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if v := args.Get(0); v != nil {
		return v.([][]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.([]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

// countingEmbedder returns one fixed vector per text.
type countingEmbedder struct {
	batchCalls int
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batchCalls++
	res := make([][]float32, 0, len(texts))
	for range texts {
		res = append(res, []float32{1, 0})
	}
	return res, nil
}

func (e *countingEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fakeStore struct {
	points      []domain.Point
	upsertCalls int
	deleted     []string
	results     []domain.SearchResult
	queryLimit  int
	err         error
}

func (s *fakeStore) EnsureCollection(ctx context.Context) error { return nil }

func (s *fakeStore) Upsert(ctx context.Context, points []domain.Point) error {
	s.upsertCalls++
	if s.err != nil {
		return s.err
	}
	s.points = append(s.points, points...)
	return nil
}

func (s *fakeStore) Query(ctx context.Context, vector []float32, limit int) ([]domain.SearchResult, error) {
	s.queryLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func (s *fakeStore) DeleteDocument(ctx context.Context, documentID string) error {
	s.deleted = append(s.deleted, documentID)
	s.points = slices.DeleteFunc(s.points, func(p domain.Point) bool {
		return p.Payload.DocumentID == documentID
	})
	return nil
}

func (s *fakeStore) DocumentIDs(ctx context.Context) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}

	var ids []string
	for _, p := range s.points {
		if !slices.Contains(ids, p.Payload.DocumentID) {
			ids = append(ids, p.Payload.DocumentID)
		}
	}
	return ids, nil
}

type fakeGenerator struct {
	prompts []string
	answer  string
	err     error
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.answer, g.err
}

type cannedGenerator struct {
	fakeGenerator
}

func (g *cannedGenerator) CannedAnswer(query string, sources []domain.Source) string {
	return "demo: " + sources[0].FileTitle
}

var errGeneration = errors.New("model overloaded")
