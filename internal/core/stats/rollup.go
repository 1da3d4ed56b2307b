package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Promotion and projection bounds shared by both aggregation paths.
const (
	// PromotionThreshold is the minimum number of ratings before an item is
	// eligible for the top-performers ranking. Below it the sample is too
	// small to rank meaningfully.
	PromotionThreshold = 3

	// TopPerformerLimit is the number of ranked items a summary carries.
	TopPerformerLimit = 8

	// RecentLimit bounds the most-recent-ratings buffer.
	RecentLimit = 20
)

// Counts is a histogram of ratings keyed by score 1..5.
type Counts map[int]int64

// NewCounts returns a zero-valued histogram with all five buckets present,
// so serialized stats always show every score.
func NewCounts() Counts {
	return Counts{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
}

// Clone returns an independent copy with all five buckets present.
func (c Counts) Clone() Counts {
	out := NewCounts()
	for score, n := range c {
		out[score] = n
	}
	return out
}

// Total sums all buckets.
func (c Counts) Total() int64 {
	var total int64
	for _, n := range c {
		total += n
	}
	return total
}

// Rollup is a running aggregate for one key: an item, an author, a
// performer bucket, or the global bucket. All of its update operations are
// commutative, so events may be folded in any order.
//
// Invariant: TotalRatings == Counts.Total(); the average is always derived
// from TotalScore/TotalRatings and never stored.
type Rollup struct {
	Key          string    `json:"key"`
	Counts       Counts    `json:"counts"`
	TotalRatings int64     `json:"total_ratings"`
	TotalScore   int64     `json:"total_score"`
	LastRatedAt  time.Time `json:"last_rated_at"`

	// CachedText and CachedAuthor are first-write-wins: once known they
	// never change, since the underlying item text and attribution are
	// immutable facts.
	CachedText   string `json:"cached_text,omitempty"`
	CachedAuthor string `json:"cached_author,omitempty"`
}

// NewRollup creates an empty rollup for key.
func NewRollup(key string) *Rollup {
	return &Rollup{Key: key, Counts: NewCounts()}
}

// Apply folds one rating into the rollup. submittedAt advances LastRatedAt
// via max semantics, so out-of-order application is safe.
func (r *Rollup) Apply(rating int, submittedAt time.Time) {
	r.Counts[rating]++
	r.TotalRatings++
	r.TotalScore += int64(rating)
	if submittedAt.After(r.LastRatedAt) {
		r.LastRatedAt = submittedAt
	}
}

// CacheText sets the cached item text if not already set.
func (r *Rollup) CacheText(text string) {
	if r.CachedText == "" && text != "" {
		r.CachedText = text
	}
}

// CacheAuthor sets the cached author if not already set.
func (r *Rollup) CacheAuthor(author string) {
	if r.CachedAuthor == "" && author != "" {
		r.CachedAuthor = author
	}
}

// Average returns the rollup's mean rating rounded to 2 decimal places.
func (r *Rollup) Average() float64 {
	return Average(r.TotalScore, r.TotalRatings)
}

// Average computes totalScore/totalRatings rounded half-up to 2 decimal
// places, or 0 when there are no ratings.
func Average(totalScore, totalRatings int64) float64 {
	if totalRatings == 0 {
		return 0
	}
	avg := decimal.NewFromInt(totalScore).
		DivRound(decimal.NewFromInt(totalRatings), 2)
	f, _ := avg.Float64()
	return f
}

// Performer is one entry of the ranked top-performers view.
type Performer struct {
	Key          string    `json:"key"`
	Average      float64   `json:"average"`
	TotalRatings int64     `json:"total_ratings"`
	LastRatedAt  time.Time `json:"last_rated_at"`
	Counts       Counts    `json:"counts"`
	Text         string    `json:"text,omitempty"`
	Author       string    `json:"author,omitempty"`
}

// SortPerformers orders entries by average desc, then total ratings desc,
// then most recent activity desc. The ordering is total given distinct
// keys, so ranked output is deterministic.
func SortPerformers(performers []Performer) {
	sort.SliceStable(performers, func(i, j int) bool {
		a, b := performers[i], performers[j]
		if a.Average != b.Average {
			return a.Average > b.Average
		}
		if a.TotalRatings != b.TotalRatings {
			return a.TotalRatings > b.TotalRatings
		}
		return a.LastRatedAt.After(b.LastRatedAt)
	})
}

// TopPerformers filters rollups to those at or above the promotion
// threshold, ranks them, and truncates to limit.
func TopPerformers(rollups []*Rollup, limit int) []Performer {
	performers := make([]Performer, 0, len(rollups))
	for _, r := range rollups {
		if r.TotalRatings < PromotionThreshold {
			continue
		}
		performers = append(performers, Performer{
			Key:          r.Key,
			Average:      r.Average(),
			TotalRatings: r.TotalRatings,
			LastRatedAt:  r.LastRatedAt,
			Counts:       r.Counts.Clone(),
			Text:         r.CachedText,
			Author:       r.CachedAuthor,
		})
	}
	SortPerformers(performers)
	if limit > 0 && len(performers) > limit {
		performers = performers[:limit]
	}
	return performers
}
