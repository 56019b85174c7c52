package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/gamma-omg/rag-spo/domain"
)

const defaultTopK = 5

type searchRequest struct {
	Query string `json:"query" validate:"required,min=1"`
	TopK  *int   `json:"top_k" validate:"omitempty,min=1,max=50"`
}

type indexRequest struct {
	DocumentID   string `json:"document_id" validate:"required"`
	ForceReindex bool   `json:"force_reindex"`
}

type indexResponse struct {
	DocumentID    string `json:"document_id"`
	ChunksIndexed int    `json:"chunks_indexed"`
	Status        string `json:"status"`
}

type indexAllRequest struct {
	SiteID *string `json:"site_id"`
}

type indexAllResponse struct {
	TotalDocuments int     `json:"total_documents"`
	TotalChunks    int     `json:"total_chunks"`
	SiteID         *string `json:"site_id"`
	Status         string  `json:"status"`
}

type documentInfo struct {
	domain.Document
	InternalDownloadURL string `json:"internal_download_url"`
	Mode                string `json:"mode,omitempty"`
}

// decode reads a JSON body into v and validates it. An empty body leaves v
// untouched when allowEmpty is set.
func (s *Server) decode(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: malformed request body: %w", domain.ErrInvalidInput, err)
	}

	return s.validate.Struct(v)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "RAG-SPO API",
		"docs":    "/docs",
		"health":  "/health",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleRagHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "rag"})
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	routes := slices.Clone(s.routes)
	slices.Sort(routes)
	s.writeJSON(w, http.StatusOK, map[string]any{"routes": routes})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := s.decode(r, &req, false); err != nil {
		s.writeError(w, "Search", err)
		return
	}

	topK := s.cfg.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	resp, err := s.searcher.AnswerWithSources(r.Context(), req.Query, topK)
	if err != nil {
		s.log.Error("search failed", slog.String("query", req.Query), slog.Any("err", err))
		s.writeError(w, "Search", err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := s.decode(r, &req, false); err != nil {
		s.writeError(w, "Indexing", err)
		return
	}

	index := s.indexer.IndexDocument
	if req.ForceReindex {
		index = s.indexer.Reindex
	}

	res, err := index(r.Context(), req.DocumentID)
	if err != nil {
		s.log.Error("indexing failed", slog.String("document_id", req.DocumentID), slog.Any("err", err))
		s.writeError(w, "Indexing", err)
		return
	}

	s.writeJSON(w, http.StatusOK, indexResponse{
		DocumentID:    res.DocumentID,
		ChunksIndexed: res.ChunksIndexed,
		Status:        "success",
	})
}

func (s *Server) handleIndexAll(w http.ResponseWriter, r *http.Request) {
	var req indexAllRequest
	if err := s.decode(r, &req, true); err != nil {
		s.writeError(w, "Indexing", err)
		return
	}

	var siteID string
	if req.SiteID != nil {
		siteID = *req.SiteID
	}

	res, err := s.indexer.IndexAll(r.Context(), siteID)
	if err != nil {
		s.log.Error("indexing all documents failed", slog.String("site_id", siteID), slog.Any("err", err))
		s.writeError(w, "Indexing", err)
		return
	}

	s.writeJSON(w, http.StatusOK, indexAllResponse{
		TotalDocuments: res.TotalDocuments,
		TotalChunks:    res.TotalChunks,
		SiteID:         req.SiteID,
		Status:         "success",
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("document_id")

	body, contentType, name, err := s.documents.Download(r.Context(), id)
	if err != nil {
		s.log.Error("download failed", slog.String("document_id", id), slog.Any("err", err))
		s.writeError(w, "Download", err)
		return
	}
	defer body.Close()

	if name == "" {
		name = id + ".bin"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", contentDisposition(name))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		s.log.Error("failed to stream document", slog.String("document_id", id), slog.Any("err", err))
	}
}

func (s *Server) handleDocumentInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("document_id")

	doc, err := s.documents.GetMetadata(r.Context(), "", id)
	if err != nil {
		s.log.Error("document info failed", slog.String("document_id", id), slog.Any("err", err))
		s.writeError(w, "Document info", err)
		return
	}

	info := documentInfo{
		Document:            doc,
		InternalDownloadURL: fmt.Sprintf("%s/download/%s", Prefix, url.PathEscape(id)),
	}
	if s.cfg.Demo {
		info.Mode = "demo"
	}

	s.writeJSON(w, http.StatusOK, info)
}
