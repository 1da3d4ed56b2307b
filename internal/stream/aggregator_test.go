package stream

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	v1 "github.com/groanlab/groanboard/internal/api/v1"
	"github.com/groanlab/groanboard/internal/core/stats"
	"github.com/groanlab/groanboard/internal/core/storage"
)

// fakeRollupStore folds updates into in-memory rollups with the same
// commutative semantics as the real store.
type fakeRollupStore struct {
	mu      sync.Mutex
	rollups map[string]*stats.Rollup
	failKey string
	failErr error
}

func newFakeRollupStore() *fakeRollupStore {
	return &fakeRollupStore{rollups: make(map[string]*stats.Rollup)}
}

func storeKey(scope storage.RollupScope, key string) string {
	return string(scope) + "/" + key
}

func (f *fakeRollupStore) Apply(
	ctx context.Context,
	scope storage.RollupScope,
	key string,
	update storage.RollupUpdate,
) (storage.RollupTotals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failErr != nil && (f.failKey == "" || f.failKey == key) {
		return storage.RollupTotals{}, f.failErr
	}

	sk := storeKey(scope, key)
	rollup, ok := f.rollups[sk]
	if !ok {
		rollup = stats.NewRollup(key)
		f.rollups[sk] = rollup
	}
	rollup.Apply(update.Rating, update.SubmittedAt)
	rollup.CacheText(update.Text)
	rollup.CacheAuthor(update.Author)
	return storage.RollupTotals{
		TotalRatings: rollup.TotalRatings,
		TotalScore:   rollup.TotalScore,
	}, nil
}

func (f *fakeRollupStore) GetRollup(ctx context.Context, scope storage.RollupScope, key string) (*stats.Rollup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rollup, ok := f.rollups[storeKey(scope, key)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rollup, nil
}

func (f *fakeRollupStore) ListAuthorRollups(ctx context.Context) ([]*stats.Rollup, error) {
	return nil, nil
}

func (f *fakeRollupStore) ListTopPerformers(ctx context.Context, limit int) ([]stats.Performer, error) {
	return nil, nil
}

func insertRecord(id string, evt *v1.RatingEvent) v1.ChangeRecord {
	return v1.ChangeRecord{RecordID: id, Action: v1.ActionInsert, Event: evt}
}

func ratingEvent(itemID string, rating int, submittedAt time.Time) *v1.RatingEvent {
	return &v1.RatingEvent{
		ID:          fmt.Sprintf("evt-%s-%d", itemID, rating),
		ItemID:      itemID,
		Rating:      rating,
		Mode:        v1.ModeLive,
		SubmittedAt: submittedAt,
	}
}

func TestAggregator_ApplyUpdatesAllThreeScopes(t *testing.T) {
	store := newFakeRollupStore()
	agg := NewAggregator(store, stats.NewAuthorResolver())
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	evt := &v1.RatingEvent{
		ID:          "evt-1",
		ItemID:      "fatherhood-1",
		Rating:      5,
		Mode:        v1.ModeLive,
		JokeText:    "A joke",
		Author:      "fatherhood.gov",
		SubmittedAt: now,
	}
	require.NoError(t, agg.Apply(context.Background(), evt))

	item, err := store.GetRollup(context.Background(), storage.ScopeItem, "live:fatherhood-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), item.TotalRatings)
	require.Equal(t, "A joke", item.CachedText)
	require.Equal(t, stats.AuthorEditorial, item.CachedAuthor)

	global, err := store.GetRollup(context.Background(), storage.ScopeGlobal, storage.GlobalKey)
	require.NoError(t, err)
	require.Equal(t, int64(1), global.TotalRatings)
	require.Equal(t, int64(5), global.TotalScore)

	author, err := store.GetRollup(context.Background(), storage.ScopeAuthor, stats.AuthorEditorial)
	require.NoError(t, err)
	require.Equal(t, int64(1), author.TotalRatings)
}

func TestAggregator_DailyEventKeyedByDateAndItem(t *testing.T) {
	store := newFakeRollupStore()
	agg := NewAggregator(store, stats.NewAuthorResolver())
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	evt := &v1.RatingEvent{
		ID:          "evt-daily",
		ItemID:      "fatherhood-9",
		Rating:      4,
		Mode:        v1.ModeDaily,
		DateKey:     "2026-03-14",
		SubmittedAt: now,
	}
	require.NoError(t, agg.Apply(context.Background(), evt))

	item, err := store.GetRollup(context.Background(), storage.ScopeItem, "daily:2026-03-14:fatherhood-9")
	require.NoError(t, err)
	require.Equal(t, int64(1), item.TotalRatings)

	// Daily ratings with no author attribute to the editorial label.
	author, err := store.GetRollup(context.Background(), storage.ScopeAuthor, stats.AuthorEditorial)
	require.NoError(t, err)
	require.Equal(t, int64(1), author.TotalRatings)
}

func TestAggregator_DailyItemsOnSameDateStaySeparate(t *testing.T) {
	store := newFakeRollupStore()
	agg := NewAggregator(store, stats.NewAuthorResolver())
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	for i, tc := range []struct {
		itemID string
		rating int
	}{
		{"fatherhood-9", 5},
		{"fatherhood-10", 1},
	} {
		require.NoError(t, agg.Apply(context.Background(), &v1.RatingEvent{
			ID:          fmt.Sprintf("evt-daily-%d", i),
			ItemID:      tc.itemID,
			Rating:      tc.rating,
			Mode:        v1.ModeDaily,
			DateKey:     "2026-03-14",
			SubmittedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	first, err := store.GetRollup(context.Background(), storage.ScopeItem, "daily:2026-03-14:fatherhood-9")
	require.NoError(t, err)
	require.Equal(t, int64(1), first.TotalRatings)
	require.Equal(t, int64(5), first.TotalScore)

	second, err := store.GetRollup(context.Background(), storage.ScopeItem, "daily:2026-03-14:fatherhood-10")
	require.NoError(t, err)
	require.Equal(t, int64(1), second.TotalRatings)
	require.Equal(t, int64(1), second.TotalScore)
}

func TestAggregator_AverageEvolution(t *testing.T) {
	store := newFakeRollupStore()
	agg := NewAggregator(store, stats.NewAuthorResolver())
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	for i, rating := range []int{5, 5, 4} {
		require.NoError(t, agg.Apply(context.Background(),
			ratingEvent("j2", rating, base.Add(time.Duration(i)*time.Minute))))
	}

	item, err := store.GetRollup(context.Background(), storage.ScopeItem, "live:j2")
	require.NoError(t, err)
	require.Equal(t, int64(3), item.TotalRatings)
	require.InDelta(t, 4.67, item.Average(), 0.001)

	require.NoError(t, agg.Apply(context.Background(),
		ratingEvent("j2", 1, base.Add(3*time.Minute))))

	item, err = store.GetRollup(context.Background(), storage.ScopeItem, "live:j2")
	require.NoError(t, err)
	require.Equal(t, int64(4), item.TotalRatings)
	require.InDelta(t, 3.75, item.Average(), 0.001)
}

func TestAggregator_CommutativeAcrossOrderings(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	events := make([]*v1.RatingEvent, 0, 10)
	for i := 0; i < 10; i++ {
		events = append(events,
			ratingEvent(fmt.Sprintf("item-%d", i%3), 1+i%5, base.Add(time.Duration(i)*time.Minute)))
	}

	fold := func(order []int) *fakeRollupStore {
		store := newFakeRollupStore()
		agg := NewAggregator(store, stats.NewAuthorResolver())
		for _, idx := range order {
			require.NoError(t, agg.Apply(context.Background(), events[idx]))
		}
		return store
	}

	forward := make([]int, len(events))
	for i := range forward {
		forward[i] = i
	}
	shuffled := rand.New(rand.NewSource(42)).Perm(len(events))

	a := fold(forward)
	b := fold(shuffled)

	for sk, rollup := range a.rollups {
		other, ok := b.rollups[sk]
		require.True(t, ok, "missing rollup %s", sk)
		require.Equal(t, rollup.TotalRatings, other.TotalRatings, sk)
		require.Equal(t, rollup.TotalScore, other.TotalScore, sk)
		require.Equal(t, rollup.Counts, other.Counts, sk)
		require.Equal(t, rollup.LastRatedAt, other.LastRatedAt, sk)
	}
}

func TestAggregator_ApplyRejectsOutOfRangeRating(t *testing.T) {
	store := newFakeRollupStore()
	agg := NewAggregator(store, stats.NewAuthorResolver())

	err := agg.Apply(context.Background(), ratingEvent("j1", 7, time.Now()))
	require.Error(t, err)
	require.Empty(t, store.rollups)
}

func TestAggregator_ProcessBatch(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		records       []v1.ChangeRecord
		setupStore    func(store *fakeRollupStore)
		wantProcessed int
		wantSkipped   int
		wantErrors    int
	}{
		{
			name: "all inserts processed",
			records: []v1.ChangeRecord{
				insertRecord("r1", ratingEvent("j1", 5, now)),
				insertRecord("r2", ratingEvent("j1", 3, now.Add(time.Minute))),
			},
			wantProcessed: 2,
		},
		{
			name: "non-insert actions skipped",
			records: []v1.ChangeRecord{
				insertRecord("r1", ratingEvent("j1", 5, now)),
				{RecordID: "r2", Action: "remove", Event: ratingEvent("j1", 3, now)},
				{RecordID: "r3", Action: "modify"},
			},
			wantProcessed: 1,
			wantSkipped:   2,
		},
		{
			name: "invalid events skipped",
			records: []v1.ChangeRecord{
				insertRecord("r1", &v1.RatingEvent{ItemID: "j1", Rating: 0, Mode: v1.ModeLive, SubmittedAt: now}),
				insertRecord("r2", &v1.RatingEvent{Rating: 4, Mode: v1.ModeLive, SubmittedAt: now}),
				insertRecord("r3", ratingEvent("j1", 4, now)),
			},
			wantProcessed: 1,
			wantSkipped:   2,
		},
		{
			name: "store failure reported without aborting batch",
			records: []v1.ChangeRecord{
				insertRecord("r1", ratingEvent("bad", 5, now)),
				insertRecord("r2", ratingEvent("good", 4, now)),
			},
			setupStore: func(store *fakeRollupStore) {
				store.failKey = "live:bad"
				store.failErr = errors.New("conditional update failed")
			},
			wantProcessed: 1,
			wantErrors:    1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeRollupStore()
			if tc.setupStore != nil {
				tc.setupStore(store)
			}
			agg := NewAggregator(store, stats.NewAuthorResolver())

			report := agg.ProcessBatch(context.Background(), tc.records)
			require.Equal(t, tc.wantProcessed, report.Processed)
			require.Equal(t, tc.wantSkipped, report.Skipped)
			require.Len(t, report.Errors, tc.wantErrors)
		})
	}
}

func TestAggregator_ProcessBatchEmptyInput(t *testing.T) {
	agg := NewAggregator(newFakeRollupStore(), stats.NewAuthorResolver())
	report := agg.ProcessBatch(context.Background(), nil)
	require.Zero(t, report.Processed)
	require.Zero(t, report.Skipped)
	require.Empty(t, report.Errors)
}

func TestNewAggregator_PanicsOnNilDependencies(t *testing.T) {
	require.Panics(t, func() { NewAggregator(nil, stats.NewAuthorResolver()) })
	require.Panics(t, func() { NewAggregator(newFakeRollupStore(), nil) })
}
