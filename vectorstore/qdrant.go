package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gamma-omg/rag-spo/domain"
)

// QdrantStore talks to the Qdrant REST API.
type QdrantStore struct {
	url        string
	apiKey     string
	collection Collection
	client     *http.Client
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection Collection
	Timeout    time.Duration
}

func NewQdrantStore(cfg QdrantConfig) *QdrantStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &QdrantStore{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return upstreamErr("get collection", err)
	}
	if status == http.StatusOK {
		return nil
	}

	if s.collection.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", domain.ErrInvalidConfiguration)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.collection.VectorSize,
			"distance": qdrantDistance(s.collection.Distance),
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return upstreamErr("create collection", err)
	}

	return nil
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload domain.Payload `json:"payload"`
}

func (s *QdrantStore) Upsert(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}

	qp := make([]qdrantPoint, 0, len(points))
	for _, p := range points {
		qp = append(qp, qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
	}

	body := map[string]any{"points": qp}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil); err != nil {
		return upstreamErr("upsert points", err)
	}

	return nil
}

func (s *QdrantStore) Query(ctx context.Context, vector []float32, limit int) ([]domain.SearchResult, error) {
	req := map[string]any{
		"query":        vector,
		"limit":        limit,
		"with_payload": true,
	}

	var resp struct {
		Result struct {
			Points []struct {
				ID      json.RawMessage `json:"id"`
				Score   float64         `json:"score"`
				Payload domain.Payload  `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/query"), req, &resp); err != nil {
		return nil, upstreamErr("query points", err)
	}

	results := make([]domain.SearchResult, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		results = append(results, domain.SearchResult{
			ID:      pointID(p.ID),
			Score:   p.Score,
			Payload: p.Payload,
		})
	}

	return results, nil
}

func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return errors.New("document id is required")
	}

	body := map[string]any{
		"filter": map[string]any{
			"must": []any{
				map[string]any{
					"key":   DocumentID,
					"match": map[string]any{"value": documentID},
				},
			},
		},
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body, nil); err != nil {
		return upstreamErr(fmt.Sprintf("forget document %s", documentID), err)
	}

	return nil
}

const qdrantScrollLimit = 256

// DocumentIDs scrolls through the collection reading only the document_id
// payload field.
func (s *QdrantStore) DocumentIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	ids := []string{}

	var offset json.RawMessage
	for {
		req := map[string]any{
			"limit":        qdrantScrollLimit,
			"with_payload": map[string]any{"include": []string{DocumentID}},
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points []struct {
					Payload struct {
						DocumentID string `json:"document_id"`
					} `json:"payload"`
				} `json:"points"`
				NextPageOffset json.RawMessage `json:"next_page_offset"`
			} `json:"result"`
		}
		if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &resp); err != nil {
			return nil, upstreamErr("scroll points", err)
		}

		for _, p := range resp.Result.Points {
			id := p.Payload.DocumentID
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}

		next := resp.Result.NextPageOffset
		if len(next) == 0 || string(next) == "null" {
			return ids, nil
		}
		offset = next
	}
}

func (s *QdrantStore) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, url.PathEscape(s.collection.Name), suffix)
}

// do sends body as JSON and decodes the response into out when it is not
// nil. The HTTP status is returned even when the request failed.
func (s *QdrantStore) do(ctx context.Context, method, url string, body any, out any) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

func qdrantDistance(d Distance) string {
	switch d {
	case Euclid:
		return "Euclid"
	case Dot:
		return "Dot"
	}

	return "Cosine"
}

// pointID renders a Qdrant id, which is either a UUID string or an unsigned
// integer.
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return string(raw)
}
