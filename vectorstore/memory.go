package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/gamma-omg/rag-spo/domain"
)

// MemoryStore is an in-process store using brute-force cosine similarity.
// It backs the offline mode and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	collection Collection
	points     []domain.Point
}

func NewMemoryStore(collection Collection) *MemoryStore {
	return &MemoryStore{collection: collection}
}

func (s *MemoryStore) EnsureCollection(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, points []domain.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		if s.collection.VectorSize > 0 && len(p.Vector) != s.collection.VectorSize {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.collection.VectorSize, len(p.Vector))
		}
	}

	for _, p := range points {
		replaced := false
		for i := range s.points {
			if s.points[i].ID == p.ID {
				s.points[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			s.points = append(s.points, p)
		}
	}

	return nil
}

func (s *MemoryStore) Query(ctx context.Context, vector []float32, limit int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.SearchResult, 0, len(s.points))
	for _, p := range s.points {
		results = append(results, domain.SearchResult{
			ID:      p.ID,
			Score:   s.score(p.Vector, vector),
			Payload: p.Payload,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit >= 0 && limit < len(results) {
		results = results[:limit]
	}

	return results, nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.points[:0]
	for _, p := range s.points {
		if p.Payload.DocumentID != documentID {
			kept = append(kept, p)
		}
	}
	s.points = kept

	return nil
}

func (s *MemoryStore) DocumentIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	ids := []string{}
	for _, p := range s.points {
		id := p.Payload.DocumentID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func (s *MemoryStore) score(a, b []float32) float64 {
	switch s.collection.Distance {
	case Dot:
		return dot(a, b)
	case Euclid:
		var sum float64
		for i := range min(len(a), len(b)) {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return -math.Sqrt(sum)
	}

	na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
	if na == 0 || nb == 0 {
		return 0
	}

	return dot(a, b) / (na * nb)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range min(len(a), len(b)) {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
