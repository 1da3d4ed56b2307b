package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/groanlab/groanboard/internal/api/v1"
	"github.com/groanlab/groanboard/internal/core/stats"
)

// ErrUnavailable marks transient store failures. Callers may retry with
// backoff; every operation behind it is idempotent or commutative.
var ErrUnavailable = errors.New("store unavailable")

// ErrNotFound is returned when a rollup key has never been written.
var ErrNotFound = errors.New("rollup not found")

// EventStore is the durable, append-only log of rating events.
type EventStore interface {
	// Append persists one immutable rating event and populates IngestSeq.
	Append(ctx context.Context, event *v1.RatingEvent) error

	// ListAfterCursor enumerates events in strict ingest order. cursor=0
	// restarts from the beginning; each call is an independent page, so a
	// full scan is a finite, restartable sequence. Corrupt rows are
	// skipped with a logged warning rather than failing the page.
	ListAfterCursor(ctx context.Context, cursor int64, limit int) ([]*v1.RatingEvent, error)

	// ListForItem fetches all events for one item partition. dateKey is
	// required for daily mode and ignored for live mode.
	ListForItem(ctx context.Context, mode, itemID, dateKey string) ([]*v1.RatingEvent, error)

	// ListRecent fetches the most recently submitted events, newest first.
	ListRecent(ctx context.Context, limit int) ([]*v1.RatingEvent, error)
}

// RollupScope selects which precomputed aggregate family a key addresses.
type RollupScope string

const (
	ScopeItem   RollupScope = "item"
	ScopeGlobal RollupScope = "global"
	ScopeAuthor RollupScope = "author"
)

// GlobalKey is the single key of the global scope.
const GlobalKey = "GLOBAL"

// RollupUpdate describes one event's contribution to a rollup record.
type RollupUpdate struct {
	Rating      int
	SubmittedAt time.Time

	// Text and Author are cached first-write-wins on the rollup; empty
	// values never overwrite.
	Text   string
	Author string
}

// RollupTotals is the post-update state returned by Apply so callers can
// derive the new average and detect promotion-threshold crossings.
type RollupTotals struct {
	TotalRatings int64
	TotalScore   int64
}

// RollupStore maintains the precomputed aggregates the push path writes
// and the dashboard reads.
type RollupStore interface {
	// Apply folds one rating into the (scope, key) rollup as a single
	// atomic conditional mutation. Updates to different keys may proceed
	// fully in parallel; per-key serialization is the store's concern.
	Apply(ctx context.Context, scope RollupScope, key string, update RollupUpdate) (RollupTotals, error)

	// GetRollup fetches one rollup record, or ErrNotFound.
	GetRollup(ctx context.Context, scope RollupScope, key string) (*stats.Rollup, error)

	// ListAuthorRollups fetches every author rollup.
	ListAuthorRollups(ctx context.Context) ([]*stats.Rollup, error)

	// ListTopPerformers fetches the ranked index of items at or above the
	// promotion threshold, best first.
	ListTopPerformers(ctx context.Context, limit int) ([]stats.Performer, error)
}
