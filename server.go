package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gamma-omg/rag-spo/domain"
	"github.com/gamma-omg/rag-spo/rag"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type answerer interface {
	AnswerWithSources(ctx context.Context, query string, topK int) (domain.SearchResponse, error)
}

type documentIndexer interface {
	IndexDocument(ctx context.Context, documentID string) (domain.IndexResult, error)
	Reindex(ctx context.Context, documentID string) (domain.IndexResult, error)
}

func NewRagServer(searcher answerer, indexer documentIndexer, defaultTopK int) *server.MCPServer {
	search := mcp.NewTool("search_documents",
		mcp.WithDescription("Search SharePoint documents and answer the query with cited sources"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of chunks to retrieve (1-50)"),
			mcp.Min(1),
			mcp.Max(50),
		))

	index := mcp.NewTool("index_document",
		mcp.WithDescription("Index a document so that it can be searched"),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Document id in the document store"),
		),
		mcp.WithBoolean("force_reindex",
			mcp.Description("Replace the chunks already stored for the document"),
		))

	srv := server.NewMCPServer("RAG-SPO", "0.1.0", server.WithToolCapabilities(false))

	srv.AddTool(search, searchHandler(searcher, defaultTopK))
	srv.AddTool(index, indexHandler(indexer))

	return srv
}

func searchHandler(searcher answerer, defaultTopK int) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		topK := request.GetInt("top_k", defaultTopK)
		if err := checkTopK(topK); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		res, err := searcher.AnswerWithSources(ctx, q, topK)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(res), nil
	}
}

func indexHandler(indexer documentIndexer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("document_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		index := indexer.IndexDocument
		if request.GetBool("force_reindex", false) {
			index = indexer.Reindex
		}

		res, err := index(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(res), nil
	}
}

func checkTopK(topK int) error {
	if topK < 1 || topK > rag.MaxTopK {
		return fmt.Errorf("%w: top_k must be between 1 and %d, got %d", domain.ErrInvalidInput, rag.MaxTopK, topK)
	}

	return nil
}

func jsonResult(v any) *mcp.CallToolResult {
	raw, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}

	return mcp.NewToolResultText(string(raw))
}
