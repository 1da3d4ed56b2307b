package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	v1 "github.com/groanlab/groanboard/internal/api/v1"
	"github.com/groanlab/groanboard/internal/core/stats"
	"github.com/groanlab/groanboard/internal/core/storage"
)

// defaultPageSize bounds one enumeration page. The scan holds at most one
// page of events plus the bounded accumulators, regardless of log size.
const defaultPageSize = 500

// Summarizer recomputes the full Summary from scratch on every call by
// paging through the entire event log. It never writes; correctness comes
// from recomputing over the complete log rather than from incremental state.
type Summarizer struct {
	events   storage.EventStore
	authors  *stats.AuthorResolver
	pageSize int
}

// NewSummarizer creates a Summarizer with the given dependencies.
// Panics if any dependency is nil, as this indicates a programming error.
func NewSummarizer(events storage.EventStore, authors *stats.AuthorResolver) *Summarizer {
	if events == nil {
		panic("batch: event store cannot be nil")
	}
	if authors == nil {
		panic("batch: author resolver cannot be nil")
	}
	return &Summarizer{
		events:   events,
		authors:  authors,
		pageSize: defaultPageSize,
	}
}

// Summarize scans the full event log and derives the Summary. The only
// failure it propagates is enumeration failure; malformed events are
// skipped and counted, never fatal.
func (s *Summarizer) Summarize(ctx context.Context) (*Summary, error) {
	acc := newAccumulator(s.authors)

	cursor := int64(0)
	for {
		events, err := s.events.ListAfterCursor(ctx, cursor, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("enumerate events after cursor %d: %w", cursor, err)
		}
		if len(events) == 0 {
			break
		}

		for _, evt := range events {
			acc.fold(evt)
		}
		acc.trimRecent()
		cursor = events[len(events)-1].IngestSeq
	}

	summary := acc.summary()
	slog.Info("[BatchAggregator] Summary computed",
		"events_seen", acc.seen,
		"events_skipped", acc.skipped,
		"authors", len(summary.Authors),
		"top_performers", len(summary.TopPerformers))
	return summary, nil
}

// recentEntry pairs an event with its fold position so equal timestamps
// keep insertion order through the stable sort.
type recentEntry struct {
	event  *v1.RatingEvent
	author string
}

type accumulator struct {
	resolver *stats.AuthorResolver

	global     *stats.Rollup
	modeTotals ModeTotals
	authors    map[string]*stats.Rollup
	performers map[string]*stats.Rollup
	dates      map[string]*stats.Rollup
	recent     []recentEntry

	seen    int64
	skipped int64
}

func newAccumulator(resolver *stats.AuthorResolver) *accumulator {
	return &accumulator{
		resolver:   resolver,
		global:     stats.NewRollup(storage.GlobalKey),
		authors:    make(map[string]*stats.Rollup),
		performers: make(map[string]*stats.Rollup),
		dates:      make(map[string]*stats.Rollup),
	}
}

// fold accumulates one event. All accumulations are commutative, so the
// enumeration order never affects the result.
func (a *accumulator) fold(evt *v1.RatingEvent) {
	a.seen++
	if evt.Rating < v1.MinRating || evt.Rating > v1.MaxRating {
		a.skipped++
		return
	}

	mode := v1.NormalizedMode(evt.Mode)
	author := a.resolver.Resolve(evt.Author, evt.ItemID, mode)

	a.global.Apply(evt.Rating, evt.SubmittedAt)
	if mode == v1.ModeDaily {
		a.modeTotals.Daily++
	} else {
		a.modeTotals.Live++
	}

	authorRollup, ok := a.authors[author]
	if !ok {
		authorRollup = stats.NewRollup(author)
		a.authors[author] = authorRollup
	}
	authorRollup.Apply(evt.Rating, evt.SubmittedAt)

	key := evt.RollupKey()
	performer, ok := a.performers[key]
	if !ok {
		performer = stats.NewRollup(key)
		a.performers[key] = performer
	}
	performer.Apply(evt.Rating, evt.SubmittedAt)
	performer.CacheText(evt.JokeText)
	performer.CacheAuthor(author)

	if mode == v1.ModeDaily {
		dateRollup, ok := a.dates[evt.DateKey]
		if !ok {
			dateRollup = stats.NewRollup(evt.DateKey)
			a.dates[evt.DateKey] = dateRollup
		}
		dateRollup.Apply(evt.Rating, evt.SubmittedAt)
	}

	a.recent = append(a.recent, recentEntry{event: evt, author: author})
}

// trimRecent keeps the buffer bounded between pages. The stable sort keeps
// fold order for equal timestamps, so ties break toward the earlier entry.
func (a *accumulator) trimRecent() {
	sort.SliceStable(a.recent, func(i, j int) bool {
		return a.recent[i].event.SubmittedAt.After(a.recent[j].event.SubmittedAt)
	})
	if len(a.recent) > stats.RecentLimit {
		a.recent = a.recent[:stats.RecentLimit]
	}
}

// summary derives the output document from the accumulated state.
func (a *accumulator) summary() *Summary {
	a.trimRecent()

	out := &Summary{
		Totals: Totals{
			TotalRatings:  a.global.TotalRatings,
			AverageRating: a.global.Average(),
			ByMode:        a.modeTotals,
		},
		RatingDistribution: a.global.Counts.Clone(),
		Authors:            make([]AuthorSummary, 0, len(a.authors)),
		HighestVolumeDates: make([]DateVolume, 0, len(a.dates)),
		RecentRatings:      make([]RecentRating, 0, len(a.recent)),
	}

	for name, rollup := range a.authors {
		out.Authors = append(out.Authors, AuthorSummary{
			Author:       name,
			TotalRatings: rollup.TotalRatings,
			Average:      rollup.Average(),
			Counts:       rollup.Counts.Clone(),
		})
	}
	sort.Slice(out.Authors, func(i, j int) bool {
		x, y := out.Authors[i], out.Authors[j]
		if x.TotalRatings != y.TotalRatings {
			return x.TotalRatings > y.TotalRatings
		}
		if x.Average != y.Average {
			return x.Average > y.Average
		}
		return x.Author < y.Author
	})

	performers := make([]*stats.Rollup, 0, len(a.performers))
	for _, rollup := range a.performers {
		performers = append(performers, rollup)
	}
	out.TopPerformers = stats.TopPerformers(performers, stats.TopPerformerLimit)

	for dateKey, rollup := range a.dates {
		out.HighestVolumeDates = append(out.HighestVolumeDates, DateVolume{
			DateKey:      dateKey,
			TotalRatings: rollup.TotalRatings,
			Average:      rollup.Average(),
		})
	}
	sort.Slice(out.HighestVolumeDates, func(i, j int) bool {
		x, y := out.HighestVolumeDates[i], out.HighestVolumeDates[j]
		if x.TotalRatings != y.TotalRatings {
			return x.TotalRatings > y.TotalRatings
		}
		if x.Average != y.Average {
			return x.Average > y.Average
		}
		return x.DateKey < y.DateKey
	})
	if len(out.HighestVolumeDates) > HighestVolumeDateLimit {
		out.HighestVolumeDates = out.HighestVolumeDates[:HighestVolumeDateLimit]
	}

	for _, entry := range a.recent {
		evt := entry.event
		out.RecentRatings = append(out.RecentRatings, RecentRating{
			ItemID:      evt.ItemID,
			Rating:      evt.Rating,
			Mode:        v1.NormalizedMode(evt.Mode),
			DateKey:     evt.DateKey,
			Author:      entry.author,
			JokeText:    evt.JokeText,
			SubmittedAt: evt.SubmittedAt,
		})
	}

	return out
}
