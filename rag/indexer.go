package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gamma-omg/rag-spo/chunker"
	"github.com/gamma-omg/rag-spo/domain"
	"github.com/google/uuid"
)

type IndexerConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type Indexer struct {
	log      *slog.Logger
	source   DocumentSource
	embedder Embedder
	store    VectorStore
	cfg      IndexerConfig
	newID    func() string
}

func NewIndexer(log *slog.Logger, source DocumentSource, embedder Embedder, store VectorStore, cfg IndexerConfig) (*Indexer, error) {
	if err := chunker.Validate(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, err
	}

	return &Indexer{
		log:      log,
		source:   source,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		newID:    uuid.NewString,
	}, nil
}

// IndexDocument chunks, embeds and stores one document from the default
// site. Every call adds new points; use Reindex to replace existing ones.
func (ix *Indexer) IndexDocument(ctx context.Context, documentID string) (domain.IndexResult, error) {
	return ix.index(ctx, "", documentID, false)
}

// Reindex replaces the points stored for the document. Old points are
// dropped only once the new ones are embedded, so a failed fetch or
// embedding leaves the previous index in place.
func (ix *Indexer) Reindex(ctx context.Context, documentID string) (domain.IndexResult, error) {
	return ix.index(ctx, "", documentID, true)
}

// Forget removes every point stored for the document.
func (ix *Indexer) Forget(ctx context.Context, documentID string) error {
	if err := ix.forget(ctx, documentID); err != nil {
		return err
	}

	ix.log.Info("document forgotten", slog.String("document_id", documentID))
	return nil
}

func (ix *Indexer) forget(ctx context.Context, documentID string) error {
	if err := ix.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete points of document %s: %w", documentID, err)
	}

	return nil
}

// IndexedDocuments lists the ids of the documents that have points in the
// store.
func (ix *Indexer) IndexedDocuments(ctx context.Context) ([]string, error) {
	ids, err := ix.store.DocumentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed documents: %w", err)
	}

	return ids, nil
}

// IndexAll indexes every document of the site one after another. Documents
// that fail are logged and left out of the totals.
func (ix *Indexer) IndexAll(ctx context.Context, siteID string) (domain.IndexAllResult, error) {
	docs, err := ix.source.ListDocuments(ctx, siteID)
	if err != nil {
		return domain.IndexAllResult{}, fmt.Errorf("failed to list documents: %w", err)
	}

	ix.log.Info("indexing documents", slog.String("site_id", siteID), slog.Int("count", len(docs)))

	var res domain.IndexAllResult
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		r, err := ix.index(ctx, siteID, doc.ID, false)
		if err != nil {
			ix.log.Error("failed to index document",
				slog.String("document_id", doc.ID),
				slog.String("name", doc.Name),
				slog.Any("err", err))
			continue
		}

		res.TotalDocuments++
		res.TotalChunks += r.ChunksIndexed
	}

	ix.log.Info("indexing finished",
		slog.Int("total_documents", res.TotalDocuments),
		slog.Int("total_chunks", res.TotalChunks))

	return res, nil
}

func (ix *Indexer) index(ctx context.Context, siteID, documentID string, replace bool) (domain.IndexResult, error) {
	res := domain.IndexResult{DocumentID: documentID}

	content, err := ix.source.GetContent(ctx, siteID, documentID)
	if err != nil {
		return res, fmt.Errorf("failed to get content of document %s: %w", documentID, err)
	}

	meta, err := ix.source.GetMetadata(ctx, siteID, documentID)
	if err != nil {
		return res, fmt.Errorf("failed to get metadata of document %s: %w", documentID, err)
	}

	name := meta.Name
	if name == "" {
		name = "Unknown"
	}

	chunks, err := chunker.SplitWithMetadata(content, documentID, name, ix.cfg.ChunkSize, ix.cfg.ChunkOverlap)
	if err != nil {
		return res, err
	}

	ix.log.Info("document chunked", slog.String("document_id", documentID), slog.Int("chunks", len(chunks)))
	if len(chunks) == 0 {
		if replace {
			return res, ix.forget(ctx, documentID)
		}
		return res, nil
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return res, fmt.Errorf("failed to embed document %s: %w", documentID, err)
	}
	if len(vectors) != len(chunks) {
		return res, fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrEmbeddingFailed, len(vectors), len(chunks))
	}

	source := domain.SourceMeta{
		WebURL:       meta.WebURL,
		DownloadURL:  meta.DownloadURL,
		ModifiedDate: meta.ModifiedDate,
		Author:       meta.Author,
	}

	points := make([]domain.Point, 0, len(chunks))
	for i, c := range chunks {
		points = append(points, domain.Point{
			ID:     ix.newID(),
			Vector: vectors[i],
			Payload: domain.Payload{
				DocumentID:   c.DocumentID,
				DocumentName: c.DocumentName,
				ChunkIndex:   c.ChunkIndex,
				Text:         c.Text,
				Source:       source,
			},
		})
	}

	if replace {
		if err := ix.forget(ctx, documentID); err != nil {
			return res, err
		}
	}

	if err := ix.store.Upsert(ctx, points); err != nil {
		return res, fmt.Errorf("failed to store document %s: %w", documentID, err)
	}

	ix.log.Info("document indexed", slog.String("document_id", documentID), slog.Int("points", len(points)))

	res.ChunksIndexed = len(points)
	return res, nil
}
