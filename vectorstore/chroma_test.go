package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/gamma-omg/rag-spo/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCollection struct {
	mock.Mock
}

func (m *mockCollection) Add(ctx context.Context, opts ...chroma.CollectionUpdateOption) error {
	args := m.Called(ctx, opts)
	return args.Error(0)
}

func (m *mockCollection) Get(ctx context.Context, opts ...chroma.CollectionGetOption) (chroma.GetResult, error) {
	args := m.Called(ctx, opts)
	if v := args.Get(0); v != nil {
		return v.(chroma.GetResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCollection) Query(ctx context.Context, opts ...chroma.CollectionQueryOption) (chroma.QueryResult, error) {
	args := m.Called(ctx, opts)
	if v := args.Get(0); v != nil {
		return v.(chroma.QueryResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCollection) Delete(ctx context.Context, opts ...chroma.CollectionDeleteOption) error {
	args := m.Called(ctx, opts)
	return args.Error(0)
}

type fakeMetadata map[string]any

func (m fakeMetadata) GetString(key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

func (m fakeMetadata) GetInt(key string) (int64, bool) {
	v, ok := m[key].(int64)
	return v, ok
}

func testPoints(n int) []domain.Point {
	points := make([]domain.Point, 0, n)
	for i := range n {
		points = append(points, domain.Point{
			ID:     string(rune('a' + i)),
			Vector: []float32{float32(i), 1},
			Payload: domain.Payload{
				DocumentID: "doc",
				ChunkIndex: i,
				Text:       "text",
			},
		})
	}
	return points
}

func Test_ChromaUpsert_Batches(t *testing.T) {
	col := &mockCollection{}
	col.On("Add", mock.Anything, mock.Anything).Return(nil)

	store := &ChromaStore{col: col, requestSize: 2}
	err := store.Upsert(context.Background(), testPoints(5))
	require.NoError(t, err)

	col.AssertNumberOfCalls(t, "Add", 3)
}

func Test_ChromaUpsert_SingleRequestWithoutLimit(t *testing.T) {
	col := &mockCollection{}
	col.On("Add", mock.Anything, mock.Anything).Return(nil)

	store := &ChromaStore{col: col}
	err := store.Upsert(context.Background(), testPoints(5))
	require.NoError(t, err)

	col.AssertNumberOfCalls(t, "Add", 1)
}

func Test_ChromaUpsert_Empty(t *testing.T) {
	col := &mockCollection{}

	store := &ChromaStore{col: col}
	err := store.Upsert(context.Background(), nil)
	require.NoError(t, err)

	col.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}

func Test_ChromaUpsert_Error(t *testing.T) {
	col := &mockCollection{}
	col.On("Add", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	store := &ChromaStore{col: col}
	err := store.Upsert(context.Background(), testPoints(1))
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.ErrorContains(t, err, "connection refused")
}

func Test_ChromaQuery_Error(t *testing.T) {
	col := &mockCollection{}
	col.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	store := &ChromaStore{col: col}
	_, err := store.Query(context.Background(), []float32{1, 0}, 3)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func Test_ChromaQuery(t *testing.T) {
	col := &mockCollection{}
	col.On("Query", mock.Anything, mock.Anything).Return(&chroma.QueryResultImpl{
		IDLists: []chroma.DocumentIDs{{"p1", "p2"}},
		DocumentsLists: []chroma.Documents{{
			chroma.NewTextDocument("first"),
			chroma.NewTextDocument("second"),
		}},
		MetadatasLists: []chroma.DocumentMetadatas{{
			chroma.NewDocumentMetadata(chroma.NewStringAttribute(DocumentID, "doc-1")),
			chroma.NewDocumentMetadata(chroma.NewStringAttribute(DocumentID, "doc-2")),
		}},
		DistancesLists: []embeddings.Distances{{0.1, 0.4}},
	}, nil)

	store := &ChromaStore{col: col, cfg: ChromaConfig{Collection: Collection{Distance: Cosine}}}
	res, err := store.Query(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)

	require.Len(t, res, 2)
	assert.Equal(t, "p1", res[0].ID)
	assert.Equal(t, "first", res[0].Payload.Text)
	assert.Equal(t, "doc-2", res[1].Payload.DocumentID)
	assert.InDelta(t, 0.9, res[0].Score, 1e-6)
}

func Test_ChromaQuery_OnlyIDs(t *testing.T) {
	col := &mockCollection{}
	col.On("Query", mock.Anything, mock.Anything).Return(&chroma.QueryResultImpl{
		IDLists: []chroma.DocumentIDs{{"p1", "p2"}},
	}, nil)

	store := &ChromaStore{col: col}
	res, err := store.Query(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)

	require.Len(t, res, 2)
	assert.Equal(t, "p2", res[1].ID)
	assert.Empty(t, res[1].Payload.Text)
}

func Test_ChromaDocumentIDs(t *testing.T) {
	meta := func(id string) chroma.DocumentMetadata {
		return chroma.NewDocumentMetadata(chroma.NewStringAttribute(DocumentID, id))
	}

	firstIDs := make(chroma.DocumentIDs, 0, chromaPageSize)
	firstMetas := make(chroma.DocumentMetadatas, 0, chromaPageSize)
	for i := range chromaPageSize {
		firstIDs = append(firstIDs, chroma.DocumentID(fmt.Sprintf("p%d", i)))
		firstMetas = append(firstMetas, meta(fmt.Sprintf("doc-%d", i%2)))
	}

	col := &mockCollection{}
	col.On("Get", mock.Anything, mock.Anything).Return(&chroma.GetResultImpl{
		Ids:       firstIDs,
		Metadatas: firstMetas,
	}, nil).Once()
	col.On("Get", mock.Anything, mock.Anything).Return(&chroma.GetResultImpl{
		Ids:       chroma.DocumentIDs{"q1", "q2"},
		Metadatas: chroma.DocumentMetadatas{meta("doc-1"), meta("doc-3")},
	}, nil).Once()

	store := &ChromaStore{col: col}
	ids, err := store.DocumentIDs(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"doc-0", "doc-1", "doc-3"}, ids)
	col.AssertNumberOfCalls(t, "Get", 2)
}

func Test_ChromaDocumentIDs_Error(t *testing.T) {
	col := &mockCollection{}
	col.On("Get", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	store := &ChromaStore{col: col}
	_, err := store.DocumentIDs(context.Background())
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func Test_ChromaDeleteDocument(t *testing.T) {
	col := &mockCollection{}
	col.On("Delete", mock.Anything, mock.Anything).Return(nil)

	store := &ChromaStore{col: col}
	require.NoError(t, store.DeleteDocument(context.Background(), "doc-1"))
	col.AssertNumberOfCalls(t, "Delete", 1)

	assert.Error(t, store.DeleteDocument(context.Background(), ""))
	col.AssertNumberOfCalls(t, "Delete", 1)
}

func Test_FromChromaMetadata(t *testing.T) {
	p := fromChromaMetadata(fakeMetadata{
		DocumentID:   "doc-1",
		DocumentName: "report.pdf",
		ChunkIndex:   int64(3),
		WebURL:       "https://example.com/report.pdf",
		DownloadURL:  "https://example.com/report.pdf",
		ModifiedDate: "2024-01-01T00:00:00Z",
		Author:       "Kim",
	})

	assert.Equal(t, domain.Payload{
		DocumentID:   "doc-1",
		DocumentName: "report.pdf",
		ChunkIndex:   3,
		Source: domain.SourceMeta{
			WebURL:       "https://example.com/report.pdf",
			DownloadURL:  "https://example.com/report.pdf",
			ModifiedDate: "2024-01-01T00:00:00Z",
			Author:       "Kim",
		},
	}, p)
}

func Test_FromChromaMetadata_Missing(t *testing.T) {
	p := fromChromaMetadata(fakeMetadata{DocumentID: "doc-1"})
	assert.Equal(t, "doc-1", p.DocumentID)
	assert.Zero(t, p.ChunkIndex)
	assert.Empty(t, p.Source.Author)
}

func Test_ChromaScore(t *testing.T) {
	assert.InDelta(t, 0.75, chromaScore(Cosine, 0.25), 1e-9)
	assert.InDelta(t, 0.5, chromaScore(Dot, 0.5), 1e-9)
	assert.InDelta(t, -2.0, chromaScore(Euclid, 2), 1e-9)
	assert.Greater(t, chromaScore(Euclid, 1), chromaScore(Euclid, 2))
}

func Test_ChromaSpace(t *testing.T) {
	assert.Equal(t, "cosine", chromaSpace(Cosine))
	assert.Equal(t, "l2", chromaSpace(Euclid))
	assert.Equal(t, "ip", chromaSpace(Dot))
}
