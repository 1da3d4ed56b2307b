package v1

import (
	"fmt"
	"regexp"
	"time"
)

// Rating modes. Daily events belong to one calendar date's featured item;
// live events accumulate against an item indefinitely.
const (
	ModeLive  = "live"
	ModeDaily = "daily"
)

// Rating bounds. Anything outside is rejected at submission and skipped
// during aggregation if it somehow reached durable storage.
const (
	MinRating = 1
	MaxRating = 5
)

var dateKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// RatingEvent is the atomic unit of the system: one immutable rating fact.
// It is created once at submission time and never mutated or deleted.
type RatingEvent struct {
	// ID is a unique identifier assigned at submission (UUID).
	ID string `json:"id"`

	// ItemID identifies the rated item. This is the primary aggregation
	// dimension alongside author and the global bucket.
	ItemID string `json:"item_id"`

	// Rating is the submitted score, an integer in [1,5].
	Rating int `json:"rating"`

	// Mode is "live" or "daily".
	Mode string `json:"mode"`

	// DateKey is the YYYY-MM-DD calendar date of a daily rating.
	// Required iff Mode is "daily".
	DateKey string `json:"date_key,omitempty"`

	// JokeText is the rated item's text as known at submission time.
	// Optional; cached first-write-wins on rollups.
	JokeText string `json:"joke_text,omitempty"`

	// Author is the raw author attribution as submitted. Canonicalization
	// happens in the aggregation paths, never here.
	Author string `json:"author,omitempty"`

	// SubmittedAt is when the rating was submitted (server clock).
	SubmittedAt time.Time `json:"submitted_at"`

	// IngestSeq is a monotonic sequence number assigned by the database on
	// append. It provides a strict total order for restartable enumeration.
	// Not exposed in the public API.
	IngestSeq int64 `json:"-"`
}

// RollupKey returns the per-item aggregate bucket this event belongs to.
// Daily ratings aggregate per (calendar date, item) so two items featured
// on the same date never share a rollup; live ratings aggregate per item.
func (e *RatingEvent) RollupKey() string {
	if NormalizedMode(e.Mode) == ModeDaily {
		return ModeDaily + ":" + e.DateKey + ":" + e.ItemID
	}
	return ModeLive + ":" + e.ItemID
}

// NormalizedMode maps any unrecognized mode to "live", matching the
// permissive treatment at submission time.
func NormalizedMode(mode string) string {
	if mode == ModeDaily {
		return ModeDaily
	}
	return ModeLive
}

// ValidDateKey reports whether s is a YYYY-MM-DD date key.
func ValidDateKey(s string) bool {
	return dateKeyPattern.MatchString(s)
}

// Validate ensures the event carries everything the aggregation paths need.
func (e *RatingEvent) Validate() error {
	if e.ItemID == "" {
		return fmt.Errorf("item_id is required")
	}

	if e.Rating < MinRating || e.Rating > MaxRating {
		return fmt.Errorf("rating must be an integer between %d and %d", MinRating, MaxRating)
	}

	if e.Mode != ModeLive && e.Mode != ModeDaily {
		return fmt.Errorf("mode must be %q or %q", ModeLive, ModeDaily)
	}

	if e.Mode == ModeDaily && !ValidDateKey(e.DateKey) {
		return fmt.Errorf("date_key is required for daily ratings (YYYY-MM-DD)")
	}

	if e.SubmittedAt.IsZero() {
		return fmt.Errorf("submitted_at is required")
	}

	return nil
}

// ChangeRecord is one entry of a change-feed batch delivered to the
// incremental aggregator. Only insert records carry a new rating event;
// everything else is counted as skipped.
type ChangeRecord struct {
	// RecordID identifies the change-feed record for error reporting.
	RecordID string `json:"record_id"`

	// Action is the change type. Only "insert" is processed.
	Action string `json:"action"`

	// Event is the inserted rating event. Nil for non-insert records.
	Event *RatingEvent `json:"event,omitempty"`
}

// ActionInsert is the only change-feed action that carries a new event.
const ActionInsert = "insert"

// RecordError reports a single failed change-feed record.
type RecordError struct {
	RecordID string `json:"record_id"`
	Error    string `json:"error"`
}

// BatchReport summarizes one change-feed batch invocation. The invocation
// itself succeeds even when individual records fail; the upstream feed
// redelivers only the failed subset.
type BatchReport struct {
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Errors    []RecordError `json:"errors"`
}
