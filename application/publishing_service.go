package application

import (
	"context"
	"fmt"
	"log/slog"

	"image-vector-index/domain"
)

// PublishingService pushes materialized records to a vector index and queries it.
type PublishingService struct {
	index  domain.VectorIndex
	schema domain.IndexSchema
	logger *slog.Logger
}

// NewPublishingService creates a new PublishingService.
func NewPublishingService(index domain.VectorIndex, schema domain.IndexSchema, logger *slog.Logger) *PublishingService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PublishingService{index: index, schema: schema, logger: logger}
}

// PublishSummary aggregates per-record outcomes.
type PublishSummary struct {
	Outcomes  []domain.PublishOutcome
	Succeeded int
	Failed    int
}

// EnsureIndex creates or updates the index schema.
func (s *PublishingService) EnsureIndex(ctx context.Context) error {
	if err := s.index.EnsureIndex(ctx, s.schema); err != nil {
		return fmt.Errorf("error ensuring index %s: %w", s.schema.Name, err)
	}
	return nil
}

// Publish ensures the index and uploads records, including those without a vector.
func (s *PublishingService) Publish(ctx context.Context, records []domain.OutputRecord) (*PublishSummary, error) {
	if err := s.EnsureIndex(ctx); err != nil {
		return nil, err
	}

	withoutVector := 0
	for _, r := range records {
		if !r.HasVector() {
			withoutVector++
		}
	}
	s.logger.Info("uploading records", "index", s.schema.Name, "records", len(records), "without_vector", withoutVector)

	outcomes, err := s.index.Publish(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("error uploading records: %w", err)
	}
	if len(outcomes) != len(records) {
		return nil, fmt.Errorf("mismatch between number of records (%d) and outcomes (%d)", len(records), len(outcomes))
	}

	summary := &PublishSummary{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failed++
			s.logger.Warn("record rejected", "id", o.ID, "status", o.StatusCode, "message", o.Message)
		}
	}
	s.logger.Info("upload finished", "succeeded", summary.Succeeded, "failed", summary.Failed)
	return summary, nil
}

// Query returns the top-k matches for vector.
func (s *PublishingService) Query(ctx context.Context, vector domain.Embedding, k int) ([]domain.QueryMatch, error) {
	if s.schema.Dimensions > 0 && len(vector) != s.schema.Dimensions {
		return nil, fmt.Errorf("query vector has %d dimensions, index expects %d", len(vector), s.schema.Dimensions)
	}
	return s.index.Query(ctx, vector, k)
}
