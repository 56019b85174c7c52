package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/gamma-omg/rag-spo/domain"
)

const (
	DocumentID   = "document_id"
	DocumentName = "document_name"
	ChunkIndex   = "chunk_index"
	WebURL       = "source.web_url"
	DownloadURL  = "source.download_url"
	ModifiedDate = "source.modified_date"
	Author       = "source.author"
)

const chromaPageSize = 1000

type chromaCollection interface {
	Add(ctx context.Context, opts ...chroma.CollectionUpdateOption) error
	Get(ctx context.Context, opts ...chroma.CollectionGetOption) (chroma.GetResult, error)
	Query(ctx context.Context, opts ...chroma.CollectionQueryOption) (chroma.QueryResult, error)
	Delete(ctx context.Context, opts ...chroma.CollectionDeleteOption) error
}

type metadataReader interface {
	GetString(key string) (string, bool)
	GetInt(key string) (int64, bool)
}

type ChromaConfig struct {
	BaseURL    string
	Collection Collection
	// EmbeddingFunc is attached to the collection on creation. Vectors are
	// always computed by the caller, so it only serves other chroma clients.
	EmbeddingFunc embeddings.EmbeddingFunction
	// RequestSize caps the number of points sent in one Add request. Zero
	// sends everything at once.
	RequestSize int
}

type ChromaStore struct {
	cfg         ChromaConfig
	client      chroma.Client
	requestSize int

	mu  sync.Mutex
	col chromaCollection
}

func NewChromaStore(cfg ChromaConfig) (*ChromaStore, error) {
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}

	return &ChromaStore{
		cfg:         cfg,
		client:      client,
		requestSize: cfg.RequestSize,
	}, nil
}

func (ds *ChromaStore) EnsureCollection(ctx context.Context) error {
	_, err := ds.collection(ctx)
	return err
}

func (ds *ChromaStore) collection(ctx context.Context) (chromaCollection, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.col != nil {
		return ds.col, nil
	}

	opts := []chroma.CreateCollectionOption{
		chroma.WithCollectionMetadataCreate(chroma.NewMetadata(
			chroma.NewStringAttribute("hnsw:space", chromaSpace(ds.cfg.Collection.Distance)),
		)),
	}
	if ds.cfg.EmbeddingFunc != nil {
		opts = append(opts, chroma.WithEmbeddingFunctionCreate(ds.cfg.EmbeddingFunc))
	}

	col, err := ds.client.GetOrCreateCollection(ctx, ds.cfg.Collection.Name, opts...)
	if err != nil {
		return nil, upstreamErr(fmt.Sprintf("get or create collection %s", ds.cfg.Collection.Name), err)
	}

	ds.col = col
	return col, nil
}

func (ds *ChromaStore) Upsert(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}

	col, err := ds.collection(ctx)
	if err != nil {
		return err
	}

	size := ds.requestSize
	if size <= 0 {
		size = len(points)
	}

	for start := 0; start < len(points); start += size {
		batch := points[start:min(start+size, len(points))]

		ids := make([]chroma.DocumentID, 0, len(batch))
		texts := make([]string, 0, len(batch))
		vectors := make([]embeddings.Embedding, 0, len(batch))
		metadatas := make([]chroma.DocumentMetadata, 0, len(batch))
		for _, p := range batch {
			ids = append(ids, chroma.DocumentID(p.ID))
			texts = append(texts, p.Payload.Text)
			vectors = append(vectors, embeddings.NewEmbeddingFromFloat32(p.Vector))
			metadatas = append(metadatas, toChromaMetadata(p.Payload))
		}

		err = col.Add(ctx,
			chroma.WithIDs(ids...),
			chroma.WithTexts(texts...),
			chroma.WithEmbeddings(vectors...),
			chroma.WithMetadatas(metadatas...),
		)
		if err != nil {
			return upstreamErr("add points", err)
		}
	}

	return nil
}

func (ds *ChromaStore) Query(ctx context.Context, vector []float32, limit int) ([]domain.SearchResult, error) {
	col, err := ds.collection(ctx)
	if err != nil {
		return nil, err
	}

	r, err := col.Query(ctx,
		chroma.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chroma.WithNResults(limit),
	)
	if err != nil {
		return nil, upstreamErr("query points", err)
	}

	idGroups := r.GetIDGroups()
	if len(idGroups) == 0 {
		return []domain.SearchResult{}, nil
	}

	ids := idGroups[0]

	var docs chroma.Documents
	if g := r.GetDocumentsGroups(); len(g) > 0 {
		docs = g[0]
	}
	var metadatas chroma.DocumentMetadatas
	if g := r.GetMetadatasGroups(); len(g) > 0 {
		metadatas = g[0]
	}
	var distances embeddings.Distances
	if g := r.GetDistancesGroups(); len(g) > 0 {
		distances = g[0]
	}

	res := make([]domain.SearchResult, 0, len(ids))
	for i := range len(ids) {
		var text string
		if i < len(docs) && docs[i] != nil {
			text = docs[i].ContentString()
		}

		var payload domain.Payload
		if i < len(metadatas) && metadatas[i] != nil {
			payload = fromChromaMetadata(metadatas[i])
		}
		payload.Text = text

		var distance float64
		if i < len(distances) {
			distance = float64(distances[i])
		}

		res = append(res, domain.SearchResult{
			ID:      string(ids[i]),
			Score:   chromaScore(ds.cfg.Collection.Distance, distance),
			Payload: payload,
		})
	}

	return res, nil
}

func (ds *ChromaStore) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return errors.New("document id is required")
	}

	col, err := ds.collection(ctx)
	if err != nil {
		return err
	}

	err = col.Delete(ctx, chroma.WithWhereDelete(chroma.EqString(DocumentID, documentID)))
	if err != nil {
		return upstreamErr(fmt.Sprintf("forget document %s", documentID), err)
	}

	return nil
}

// DocumentIDs pages through the collection metadata and returns every
// distinct document id.
func (ds *ChromaStore) DocumentIDs(ctx context.Context) ([]string, error) {
	col, err := ds.collection(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	ids := []string{}
	for offset := 0; ; offset += chromaPageSize {
		res, err := col.Get(ctx,
			chroma.WithIncludeGet(chroma.IncludeMetadatas),
			chroma.WithLimitGet(chromaPageSize),
			chroma.WithOffsetGet(offset),
		)
		if err != nil {
			return nil, upstreamErr("get points", err)
		}

		metadatas := res.GetMetadatas()
		for _, meta := range metadatas {
			if meta == nil {
				continue
			}
			id, ok := meta.GetString(DocumentID)
			if !ok || id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}

		if len(res.GetIDs()) < chromaPageSize {
			return ids, nil
		}
	}
}

func toChromaMetadata(p domain.Payload) chroma.DocumentMetadata {
	return chroma.NewDocumentMetadata(
		chroma.NewStringAttribute(DocumentID, p.DocumentID),
		chroma.NewStringAttribute(DocumentName, p.DocumentName),
		chroma.NewIntAttribute(ChunkIndex, int64(p.ChunkIndex)),
		chroma.NewStringAttribute(WebURL, p.Source.WebURL),
		chroma.NewStringAttribute(DownloadURL, p.Source.DownloadURL),
		chroma.NewStringAttribute(ModifiedDate, p.Source.ModifiedDate),
		chroma.NewStringAttribute(Author, p.Source.Author),
	)
}

func fromChromaMetadata(meta metadataReader) domain.Payload {
	var p domain.Payload
	p.DocumentID, _ = meta.GetString(DocumentID)
	p.DocumentName, _ = meta.GetString(DocumentName)
	if idx, ok := meta.GetInt(ChunkIndex); ok {
		p.ChunkIndex = int(idx)
	}
	p.Source.WebURL, _ = meta.GetString(WebURL)
	p.Source.DownloadURL, _ = meta.GetString(DownloadURL)
	p.Source.ModifiedDate, _ = meta.GetString(ModifiedDate)
	p.Source.Author, _ = meta.GetString(Author)

	return p
}

func chromaSpace(d Distance) string {
	switch d {
	case Euclid:
		return "l2"
	case Dot:
		return "ip"
	}

	return "cosine"
}

// chromaScore turns a chroma distance into a similarity where higher is
// better. Cosine and inner product distances are 1-similarity.
func chromaScore(d Distance, distance float64) float64 {
	if d == Euclid {
		return -distance
	}

	return 1 - distance
}
