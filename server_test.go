package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gamma-omg/rag-spo/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAnswerer struct {
	mock.Mock
}

func (m *mockAnswerer) AnswerWithSources(ctx context.Context, query string, topK int) (domain.SearchResponse, error) {
	args := m.Called(query, topK)
	return args.Get(0).(domain.SearchResponse), args.Error(1)
}

type mockDocumentIndexer struct {
	mock.Mock
}

func (m *mockDocumentIndexer) IndexDocument(ctx context.Context, documentID string) (domain.IndexResult, error) {
	args := m.Called(documentID)
	return args.Get(0).(domain.IndexResult), args.Error(1)
}

func (m *mockDocumentIndexer) Reindex(ctx context.Context, documentID string) (domain.IndexResult, error) {
	args := m.Called(documentID)
	return args.Get(0).(domain.IndexResult), args.Error(1)
}

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func Test_SearchTool(t *testing.T) {
	searcher := &mockAnswerer{}
	searcher.On("AnswerWithSources", "timeline", 5).Return(domain.SearchResponse{
		Answer:  "March",
		Sources: []domain.Source{{FileTitle: "plan.docx", Score: 0.9}},
		Query:   "timeline",
	}, nil)

	res, err := searchHandler(searcher, 5)(context.Background(), toolRequest("search_documents", map[string]any{"query": "timeline"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var got domain.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, "March", got.Answer)
	assert.Equal(t, "plan.docx", got.Sources[0].FileTitle)
}

func Test_SearchTool_Errors(t *testing.T) {
	searcher := &mockAnswerer{}
	searcher.On("AnswerWithSources", "q", 3).Return(domain.SearchResponse{}, domain.ErrUpstreamUnavailable)
	handler := searchHandler(searcher, 5)

	res, err := handler(context.Background(), toolRequest("search_documents", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = handler(context.Background(), toolRequest("search_documents", map[string]any{"query": "q", "top_k": 99}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = handler(context.Background(), toolRequest("search_documents", map[string]any{"query": "q", "top_k": 3}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "upstream unavailable")
}

func Test_IndexTool(t *testing.T) {
	indexer := &mockDocumentIndexer{}
	indexer.On("IndexDocument", "d1").Return(domain.IndexResult{DocumentID: "d1", ChunksIndexed: 2}, nil)
	indexer.On("Reindex", "d1").Return(domain.IndexResult{DocumentID: "d1", ChunksIndexed: 3}, nil)
	handler := indexHandler(indexer)

	res, err := handler(context.Background(), toolRequest("index_document", map[string]any{"document_id": "d1"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"document_id":"d1","chunks_indexed":2}`, resultText(t, res))

	res, err = handler(context.Background(), toolRequest("index_document", map[string]any{"document_id": "d1", "force_reindex": true}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"document_id":"d1","chunks_indexed":3}`, resultText(t, res))
}

func Test_NewRagServer(t *testing.T) {
	srv := NewRagServer(&mockAnswerer{}, &mockDocumentIndexer{}, 5)
	assert.NotNil(t, srv)
}

func Test_checkTopK(t *testing.T) {
	assert.NoError(t, checkTopK(1))
	assert.NoError(t, checkTopK(50))
	assert.ErrorIs(t, checkTopK(0), domain.ErrInvalidInput)
	assert.ErrorIs(t, checkTopK(-3), domain.ErrInvalidInput)
	assert.ErrorIs(t, checkTopK(51), domain.ErrInvalidInput)
}
