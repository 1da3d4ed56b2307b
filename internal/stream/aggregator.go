package stream

import (
	"context"
	"fmt"
	"log/slog"

	v1 "github.com/groanlab/groanboard/internal/api/v1"
	"github.com/groanlab/groanboard/internal/core/stats"
	"github.com/groanlab/groanboard/internal/core/storage"
	"github.com/groanlab/groanboard/internal/metrics"
)

// Aggregator is the push-path counterpart of the batch summarizer: it folds
// individual rating events into precomputed rollups as they arrive, so
// dashboard reads stay O(1) regardless of log size.
type Aggregator struct {
	rollups storage.RollupStore
	authors *stats.AuthorResolver
}

// NewAggregator creates an Aggregator with the given dependencies.
// Panics if any dependency is nil, as this indicates a programming error.
func NewAggregator(rollups storage.RollupStore, authors *stats.AuthorResolver) *Aggregator {
	if rollups == nil {
		panic("stream: rollup store cannot be nil")
	}
	if authors == nil {
		panic("stream: author resolver cannot be nil")
	}
	return &Aggregator{rollups: rollups, authors: authors}
}

// Apply folds one event into the item, global, and author rollups. The
// three updates are independent atomic mutations with no cross-record
// transaction; each one is commutative, so redelivery or reordering never
// corrupts structure. A mid-sequence failure leaves the earlier updates in
// place and surfaces the error for redelivery.
func (a *Aggregator) Apply(ctx context.Context, evt *v1.RatingEvent) error {
	if evt.Rating < v1.MinRating || evt.Rating > v1.MaxRating {
		return fmt.Errorf("rating %d out of range", evt.Rating)
	}

	mode := v1.NormalizedMode(evt.Mode)
	author := a.authors.Resolve(evt.Author, evt.ItemID, mode)
	itemKey := evt.RollupKey()

	totals, err := a.rollups.Apply(ctx, storage.ScopeItem, itemKey, storage.RollupUpdate{
		Rating:      evt.Rating,
		SubmittedAt: evt.SubmittedAt,
		Text:        evt.JokeText,
		Author:      author,
	})
	if err != nil {
		return fmt.Errorf("apply item rollup %q: %w", itemKey, err)
	}

	if totals.TotalRatings == stats.PromotionThreshold {
		metrics.RecordItemPromoted()
		slog.Info("[IncrementalAggregator] Item promoted to top performers",
			"key", itemKey,
			"total_ratings", totals.TotalRatings,
			"average", stats.Average(totals.TotalScore, totals.TotalRatings))
	}

	update := storage.RollupUpdate{Rating: evt.Rating, SubmittedAt: evt.SubmittedAt}
	if _, err := a.rollups.Apply(ctx, storage.ScopeGlobal, storage.GlobalKey, update); err != nil {
		return fmt.Errorf("apply global rollup: %w", err)
	}
	if _, err := a.rollups.Apply(ctx, storage.ScopeAuthor, author, update); err != nil {
		return fmt.Errorf("apply author rollup %q: %w", author, err)
	}

	slog.Debug("[IncrementalAggregator] Applied event",
		"event_id", evt.ID,
		"key", itemKey,
		"author", author,
		"rating", evt.Rating)
	return nil
}

// ProcessBatch applies a change-feed batch record by record. Non-insert
// and invalid records are skipped; per-record failures are collected in the
// report and never abort the batch. The invocation itself always succeeds,
// since the upstream feed redelivers failed records individually.
func (a *Aggregator) ProcessBatch(ctx context.Context, records []v1.ChangeRecord) v1.BatchReport {
	report := v1.BatchReport{Errors: []v1.RecordError{}}

	for _, rec := range records {
		if rec.Action != v1.ActionInsert || rec.Event == nil {
			report.Skipped++
			continue
		}
		if err := rec.Event.Validate(); err != nil {
			slog.Warn("[IncrementalAggregator] Skipping invalid record",
				"record_id", rec.RecordID,
				"error", err)
			report.Skipped++
			continue
		}

		if err := a.Apply(ctx, rec.Event); err != nil {
			slog.Error("[IncrementalAggregator] Record failed",
				"record_id", rec.RecordID,
				"error", err)
			report.Errors = append(report.Errors, v1.RecordError{
				RecordID: rec.RecordID,
				Error:    err.Error(),
			})
			continue
		}
		report.Processed++
	}

	slog.Info("[IncrementalAggregator] Batch processed",
		"records", len(records),
		"processed", report.Processed,
		"skipped", report.Skipped,
		"errors", len(report.Errors))
	return report
}
