package application

import (
	"context"
	"fmt"
	"log/slog"

	"image-vector-index/domain"

	"github.com/google/uuid"
)

// RecordWriter receives records as they are materialized. Append must make the
// record durable before returning.
type RecordWriter interface {
	Append(rec domain.OutputRecord) error
}

// Materializer turns a manifest into one durable record per item.
type Materializer struct {
	embedder domain.ImageEmbedder
	logger   *slog.Logger
}

// NewMaterializer creates a new Materializer.
func NewMaterializer(embedder domain.ImageEmbedder, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Materializer{embedder: embedder, logger: logger}
}

// RunOptions tunes a single run.
type RunOptions struct {
	// Existing holds record ids already present in the store; their items are skipped.
	Existing map[string]struct{}
}

// Run embeds every item in manifest order and appends one record per item.
// An embedding failure never stops the batch: the record is written with a
// nil vector and the failure is listed in the report. A writer failure or a
// cancelled context stops the run; the partial report is returned with the error.
func (m *Materializer) Run(ctx context.Context, items []domain.InputItem, w RecordWriter, opts RunOptions) (*domain.BatchReport, error) {
	report := &domain.BatchReport{
		RunID:    uuid.NewString(),
		Total:    len(items),
		Failures: []domain.ItemFailure{},
	}
	log := m.logger.With("run_id", report.RunID)
	log.Info("starting batch", "items", len(items), "resuming", len(opts.Existing) > 0)

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			log.Warn("batch cancelled", "next_index", item.Index)
			return report, err
		}

		rec := domain.OutputRecord{
			ID:          item.RecordID(),
			Description: domain.DescribeLocator(item.Locator),
		}
		if _, done := opts.Existing[rec.ID]; done {
			report.Skipped++
			continue
		}

		vec, err := m.embedder.EmbedImage(ctx, item.Locator)
		if err != nil {
			if ctx.Err() != nil {
				log.Warn("batch cancelled", "next_index", item.Index)
				return report, ctx.Err()
			}
			log.Warn("embedding failed", "index", item.Index, "locator", item.Locator, "error", err)
			report.Failures = append(report.Failures, domain.ItemFailure{
				Index:   item.Index,
				Locator: item.Locator,
				Cause:   err.Error(),
			})
		} else {
			rec.Vector = vec
			report.Embedded++
		}

		if err := w.Append(rec); err != nil {
			return report, fmt.Errorf("error writing record %s: %w", rec.ID, err)
		}
		log.Debug("record written", "index", item.Index, "has_vector", rec.HasVector())
	}

	log.Info("batch finished", "embedded", report.Embedded, "failed", len(report.Failures), "skipped", report.Skipped)
	return report, nil
}
