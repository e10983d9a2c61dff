package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"image-vector-index/domain"
)

// MemoryIndex is an in-process brute-force implementation of domain.VectorIndex.
// It serves offline queries straight from a record store and tests.
type MemoryIndex struct {
	mu      sync.RWMutex
	schema  domain.IndexSchema
	pos     map[string]int
	records []domain.OutputRecord
}

// NewMemoryIndex creates an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{pos: make(map[string]int)}
}

// EnsureIndex records the schema; vectors published afterwards must match its dimensions.
func (m *MemoryIndex) EnsureIndex(_ context.Context, schema domain.IndexSchema) error {
	if schema.Dimensions <= 0 {
		return fmt.Errorf("invalid vector dimensions: %d", schema.Dimensions)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schema = schema
	return nil
}

// Len returns the number of stored records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Publish stores records: 201 for new ids, 200 for replaced ones, 400 for a
// vector whose length doesn't match the schema.
func (m *MemoryIndex) Publish(ctx context.Context, records []domain.OutputRecord) ([]domain.PublishOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	outcomes := make([]domain.PublishOutcome, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			return outcomes, errors.New("record with empty id")
		}
		if dim := m.schema.Dimensions; dim > 0 && r.HasVector() && len(r.Vector) != dim {
			outcomes = append(outcomes, domain.PublishOutcome{
				ID:         r.ID,
				StatusCode: http.StatusBadRequest,
				Message:    fmt.Sprintf("vector has %d dimensions, index expects %d", len(r.Vector), dim),
			})
			continue
		}
		if i, ok := m.pos[r.ID]; ok {
			m.records[i] = r
			outcomes = append(outcomes, domain.PublishOutcome{ID: r.ID, StatusCode: http.StatusOK})
			continue
		}
		m.pos[r.ID] = len(m.records)
		m.records = append(m.records, r)
		outcomes = append(outcomes, domain.PublishOutcome{ID: r.ID, StatusCode: http.StatusCreated})
	}
	return outcomes, nil
}

// Query ranks every record with a vector by cosine similarity, best first.
// Ties keep publication order.
func (m *MemoryIndex) Query(ctx context.Context, vector domain.Embedding, k int) ([]domain.QueryMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) == 0 {
		return nil, errors.New("query vector is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]domain.QueryMatch, 0, len(m.records))
	for _, r := range m.records {
		if !r.HasVector() {
			continue
		}
		score, err := Cosine(vector, r.Vector)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.ID, err)
		}
		matches = append(matches, domain.QueryMatch{ID: r.ID, Description: r.Description, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
