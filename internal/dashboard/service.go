package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"

	v1 "github.com/groanlab/groanboard/internal/api/v1"
	"github.com/groanlab/groanboard/internal/core/stats"
	"github.com/groanlab/groanboard/internal/core/storage"
)

// Service implements the dashboard read layer. Every method is a direct
// fetch against precomputed rollups or the recent-events projection; no
// aggregation happens at read time, so reads stay O(1) in log size.
type Service struct {
	rollups storage.RollupStore
	events  storage.EventStore
	authors *stats.AuthorResolver
}

// NewService creates a dashboard service with the given dependencies.
// Panics if any dependency is nil, as this indicates a programming error.
func NewService(rollups storage.RollupStore, events storage.EventStore, authors *stats.AuthorResolver) *Service {
	if rollups == nil {
		panic("dashboard: rollup store cannot be nil")
	}
	if events == nil {
		panic("dashboard: event store cannot be nil")
	}
	if authors == nil {
		panic("dashboard: author resolver cannot be nil")
	}
	return &Service{rollups: rollups, events: events, authors: authors}
}

// GlobalStats fetches the all-time aggregate. A store with no ratings yet
// reports the zero-valued shape.
func (s *Service) GlobalStats(ctx context.Context) (GlobalStats, error) {
	rollup, err := s.rollups.GetRollup(ctx, storage.ScopeGlobal, storage.GlobalKey)
	if errors.Is(err, storage.ErrNotFound) {
		return GlobalStats{Counts: stats.NewCounts()}, nil
	}
	if err != nil {
		return GlobalStats{}, fmt.Errorf("fetch global rollup: %w", err)
	}

	return GlobalStats{
		TotalRatings:  rollup.TotalRatings,
		AverageRating: rollup.Average(),
		Counts:        rollup.Counts.Clone(),
		LastRatedAt:   rollup.LastRatedAt,
	}, nil
}

// AuthorStats fetches every author aggregate, ordered by volume, then
// average, then name.
func (s *Service) AuthorStats(ctx context.Context) ([]AuthorStats, error) {
	rollups, err := s.rollups.ListAuthorRollups(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch author rollups: %w", err)
	}

	authors := make([]AuthorStats, 0, len(rollups))
	for _, rollup := range rollups {
		authors = append(authors, AuthorStats{
			Author:       rollup.Key,
			TotalRatings: rollup.TotalRatings,
			Average:      rollup.Average(),
			Counts:       rollup.Counts.Clone(),
		})
	}
	sort.Slice(authors, func(i, j int) bool {
		x, y := authors[i], authors[j]
		if x.TotalRatings != y.TotalRatings {
			return x.TotalRatings > y.TotalRatings
		}
		if x.Average != y.Average {
			return x.Average > y.Average
		}
		return x.Author < y.Author
	})
	return authors, nil
}

// TopPerformers fetches the ranked index, best first. limit<=0 uses the
// standard projection size.
func (s *Service) TopPerformers(ctx context.Context, limit int) ([]stats.Performer, error) {
	if limit <= 0 {
		limit = stats.TopPerformerLimit
	}
	performers, err := s.rollups.ListTopPerformers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch top performers: %w", err)
	}
	return performers, nil
}

// RecentRatings fetches the newest ratings with resolved author labels.
func (s *Service) RecentRatings(ctx context.Context, limit int) ([]RecentRating, error) {
	if limit <= 0 {
		limit = stats.RecentLimit
	}
	events, err := s.events.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch recent events: %w", err)
	}

	recent := make([]RecentRating, 0, len(events))
	for _, evt := range events {
		mode := v1.NormalizedMode(evt.Mode)
		recent = append(recent, RecentRating{
			ItemID:      evt.ItemID,
			Rating:      evt.Rating,
			Mode:        mode,
			DateKey:     evt.DateKey,
			Author:      s.authors.Resolve(evt.Author, evt.ItemID, mode),
			JokeText:    evt.JokeText,
			SubmittedAt: evt.SubmittedAt,
		})
	}
	return recent, nil
}

// ItemStats fetches one item partition's aggregate. A never-rated item
// reports the zero-valued shape, not an error.
func (s *Service) ItemStats(ctx context.Context, mode, itemID, dateKey string) (ItemStats, error) {
	mode = v1.NormalizedMode(mode)
	key := (&v1.RatingEvent{Mode: mode, ItemID: itemID, DateKey: dateKey}).RollupKey()

	out := ItemStats{
		ItemID: itemID,
		Mode:   mode,
		Counts: stats.NewCounts(),
	}
	if mode == v1.ModeDaily {
		out.DateKey = dateKey
	}

	rollup, err := s.rollups.GetRollup(ctx, storage.ScopeItem, key)
	if errors.Is(err, storage.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return ItemStats{}, fmt.Errorf("fetch item rollup %q: %w", key, err)
	}

	out.TotalRatings = rollup.TotalRatings
	out.Average = rollup.Average()
	out.Counts = rollup.Counts.Clone()
	out.LastRatedAt = rollup.LastRatedAt
	out.JokeText = rollup.CachedText
	out.Author = rollup.CachedAuthor
	return out, nil
}

// Dashboard assembles the full projection document.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	global, err := s.GlobalStats(ctx)
	if err != nil {
		return nil, err
	}
	authors, err := s.AuthorStats(ctx)
	if err != nil {
		return nil, err
	}
	performers, err := s.TopPerformers(ctx, stats.TopPerformerLimit)
	if err != nil {
		return nil, err
	}
	recent, err := s.RecentRatings(ctx, stats.RecentLimit)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Global:        global,
		Authors:       authors,
		TopPerformers: performers,
		RecentRatings: recent,
	}, nil
}
