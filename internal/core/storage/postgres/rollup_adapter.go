package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/groanlab/groanboard/internal/core/stats"
	"github.com/groanlab/groanboard/internal/core/storage"
)

// RollupAdapter implements storage.RollupStore using PostgreSQL.
// Every Apply is one conditional upsert, so per-key serialization is
// delegated to the database's row-level atomicity: no process-level locks,
// and updates to different keys proceed fully in parallel.
type RollupAdapter struct {
	db *sql.DB
}

// NewRollupAdapter creates a RollupAdapter sharing the given connection.
func NewRollupAdapter(db *sql.DB) *RollupAdapter {
	return &RollupAdapter{db: db}
}

// Apply folds one rating into the (scope, key) rollup record.
// The row is created lazily on first write and never deleted. Returns the
// post-update totals so callers can recompute the average and detect
// promotion-threshold crossings.
func (a *RollupAdapter) Apply(
	ctx context.Context,
	scope storage.RollupScope,
	key string,
	update storage.RollupUpdate,
) (storage.RollupTotals, error) {
	cols := countColumns(update.Rating)

	var totals storage.RollupTotals
	err := a.db.QueryRowContext(ctx, queryApplyRollup,
		string(scope),
		key,
		cols[0], cols[1], cols[2], cols[3], cols[4],
		int64(update.Rating),
		utcOrNow(update.SubmittedAt),
		nullableString(update.Text),
		nullableString(update.Author),
	).Scan(&totals.TotalRatings, &totals.TotalScore)
	if err != nil {
		return storage.RollupTotals{}, fmt.Errorf(
			"apply rollup %s/%s: %w: %v", scope, key, storage.ErrUnavailable, err)
	}

	slog.Debug("[RollupAdapter] Applied update",
		"scope", scope,
		"key", key,
		"total_ratings", totals.TotalRatings)
	return totals, nil
}

// GetRollup fetches one rollup record, or storage.ErrNotFound.
func (a *RollupAdapter) GetRollup(
	ctx context.Context,
	scope storage.RollupScope,
	key string,
) (*stats.Rollup, error) {
	row := a.db.QueryRowContext(ctx, queryGetRollup, string(scope), key)
	rollup, err := scanRollupRow(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rollup %s/%s: %w: %v", scope, key, storage.ErrUnavailable, err)
	}
	return rollup, nil
}

// ListAuthorRollups fetches every author rollup. Rows that fail to scan
// are skipped with a warning rather than failing the listing.
func (a *RollupAdapter) ListAuthorRollups(ctx context.Context) ([]*stats.Rollup, error) {
	rows, err := a.db.QueryContext(ctx, queryListAuthorRollups)
	if err != nil {
		return nil, fmt.Errorf("list author rollups: %w: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	var rollups []*stats.Rollup
	for rows.Next() {
		rollup, scanErr := scanRollupRow(rows)
		if scanErr != nil {
			slog.Warn("[RollupAdapter] Skipping unreadable author rollup row", "error", scanErr)
			continue
		}
		rollups = append(rollups, rollup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate author rollups: %w", err)
	}
	return rollups, nil
}

// ListTopPerformers fetches the ranked index, best first. The ordering is
// done by the partial index on sort_average, which exists only for rows at
// or above the promotion threshold.
func (a *RollupAdapter) ListTopPerformers(ctx context.Context, limit int) ([]stats.Performer, error) {
	if limit <= 0 {
		limit = stats.TopPerformerLimit
	}

	rows, err := a.db.QueryContext(ctx, queryListTopPerformers, limit)
	if err != nil {
		return nil, fmt.Errorf("list top performers: %w: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	var performers []stats.Performer
	for rows.Next() {
		var p stats.Performer
		var counts [5]int64
		var totalScore int64
		var lastRatedAt sql.NullTime
		var text, author sql.NullString

		scanErr := rows.Scan(
			&p.Key,
			&p.Average,
			&counts[0], &counts[1], &counts[2], &counts[3], &counts[4],
			&p.TotalRatings,
			&totalScore,
			&lastRatedAt,
			&text,
			&author,
		)
		if scanErr != nil {
			slog.Warn("[RollupAdapter] Skipping unreadable top performer row", "error", scanErr)
			continue
		}

		p.Counts = stats.NewCounts()
		for i, n := range counts {
			p.Counts[i+1] = n
		}
		p.LastRatedAt = lastRatedAt.Time
		p.Text = text.String
		p.Author = author.String
		performers = append(performers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top performers: %w", err)
	}
	return performers, nil
}
