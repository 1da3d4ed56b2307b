package postgres

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/groanlab/groanboard/internal/api/v1"
	"github.com/groanlab/groanboard/internal/core/stats"
)

// dateKeyLayout is the calendar-date format of date_key values.
const dateKeyLayout = "2006-01-02"

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEventRow scans a database row into a RatingEvent.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
// date_key is a DATE column, so the driver hands back a time.Time; it is
// reformatted to the YYYY-MM-DD key the domain uses everywhere.
func scanEventRow(row scanner) (*v1.RatingEvent, error) {
	var evt v1.RatingEvent
	var dateKey sql.NullTime
	var jokeText, author sql.NullString

	err := row.Scan(
		&evt.ID,
		&evt.ItemID,
		&evt.Rating,
		&evt.Mode,
		&dateKey,
		&jokeText,
		&author,
		&evt.SubmittedAt,
		&evt.IngestSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("scan event row: %w", err)
	}

	if dateKey.Valid {
		evt.DateKey = dateKey.Time.Format(dateKeyLayout)
	}
	evt.JokeText = jokeText.String
	evt.Author = author.String
	return &evt, nil
}

// validEventRow filters rows that fail domain validation. A corrupt stored
// record must not abort the surrounding enumeration, so callers log and
// skip instead of failing.
func validEventRow(evt *v1.RatingEvent) bool {
	if evt.Rating < v1.MinRating || evt.Rating > v1.MaxRating {
		return false
	}
	if evt.Mode != v1.ModeLive && evt.Mode != v1.ModeDaily {
		return false
	}
	return true
}

// collectEventRows drains rows into events, skipping corrupt records with
// a warning.
func collectEventRows(rows *sql.Rows) ([]*v1.RatingEvent, error) {
	var events []*v1.RatingEvent
	for rows.Next() {
		evt, err := scanEventRow(rows)
		if err != nil {
			slog.Warn("[Postgres] Skipping unreadable event row", "error", err)
			continue
		}
		if !validEventRow(evt) {
			slog.Warn("[Postgres] Skipping corrupt event row",
				"event_id", evt.ID,
				"rating", evt.Rating,
				"mode", evt.Mode)
			continue
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// scanRollupRow scans a rollup row (without sort_average) into a Rollup.
func scanRollupRow(row scanner) (*stats.Rollup, error) {
	var r stats.Rollup
	var counts [5]int64
	var lastRatedAt sql.NullTime
	var cachedText, cachedAuthor sql.NullString

	err := row.Scan(
		&r.Key,
		&counts[0], &counts[1], &counts[2], &counts[3], &counts[4],
		&r.TotalRatings,
		&r.TotalScore,
		&lastRatedAt,
		&cachedText,
		&cachedAuthor,
	)
	if err != nil {
		return nil, err
	}

	r.Counts = stats.NewCounts()
	for i, n := range counts {
		r.Counts[i+1] = n
	}
	r.LastRatedAt = lastRatedAt.Time
	r.CachedText = cachedText.String
	r.CachedAuthor = cachedAuthor.String
	return &r, nil
}

// countColumns expands a rating into the five count-column increments.
func countColumns(rating int) [5]int64 {
	var cols [5]int64
	if rating >= v1.MinRating && rating <= v1.MaxRating {
		cols[rating-1] = 1
	}
	return cols
}

// nullableString maps "" to SQL NULL so COALESCE-based first-write-wins
// columns are never claimed by an empty value.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullableDateKey maps an absent date key to SQL NULL.
func nullableDateKey(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// utcOrNow normalizes timestamps for storage.
func utcOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
