package domain

import "context"

// Default field names of the published index, matching the record store lines.
const (
	KeyField    = "id"
	TextField   = "description"
	VectorField = "image_vector"
)

// IndexSchema describes the index that records are published to.
type IndexSchema struct {
	Name        string
	KeyField    string
	TextField   string
	VectorField string
	Dimensions  int
	// HNSW profile of the approximate nearest-neighbor algorithm.
	HNSWM           int
	HNSWEfConstruct int
}

// NewIndexSchema returns a schema with the default field names.
func NewIndexSchema(name string, dimensions int) IndexSchema {
	return IndexSchema{
		Name:            name,
		KeyField:        KeyField,
		TextField:       TextField,
		VectorField:     VectorField,
		Dimensions:      dimensions,
		HNSWM:           4,
		HNSWEfConstruct: 400,
	}
}

// PublishOutcome is the per-record result reported by the index service.
type PublishOutcome struct {
	ID         string `json:"id"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"message,omitempty"`
}

// Succeeded reports whether the record was accepted.
func (o PublishOutcome) Succeeded() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}

// QueryMatch is one hit of a nearest-neighbor query.
type QueryMatch struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// VectorIndex defines the interface for interacting with a vector index.
type VectorIndex interface {
	// EnsureIndex creates the index or updates its mutable settings.
	EnsureIndex(ctx context.Context, schema IndexSchema) error
	// Publish upserts records and reports one outcome per record, in order.
	Publish(ctx context.Context, records []OutputRecord) ([]PublishOutcome, error)
	// Query returns the k records most similar to vector, best first.
	Query(ctx context.Context, vector Embedding, k int) ([]QueryMatch, error)
}
