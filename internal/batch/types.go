package batch

import (
	"time"

	"github.com/groanlab/groanboard/internal/core/stats"
)

// HighestVolumeDateLimit bounds the busiest-dates list in a summary.
const HighestVolumeDateLimit = 10

// Summary is the full-recompute aggregate document produced by one pass
// over the entire event log.
type Summary struct {
	Totals             Totals            `json:"totals"`
	RatingDistribution stats.Counts      `json:"rating_distribution"`
	Authors            []AuthorSummary   `json:"authors"`
	TopPerformers      []stats.Performer `json:"top_performers"`
	HighestVolumeDates []DateVolume      `json:"highest_volume_dates"`
	RecentRatings      []RecentRating    `json:"recent_ratings"`
}

// Totals carries the global aggregates.
type Totals struct {
	TotalRatings  int64      `json:"total_ratings"`
	AverageRating float64    `json:"average_rating"`
	ByMode        ModeTotals `json:"by_mode"`
}

// ModeTotals splits the rating volume by mode.
type ModeTotals struct {
	Live  int64 `json:"live"`
	Daily int64 `json:"daily"`
}

// AuthorSummary is one author's aggregate block.
type AuthorSummary struct {
	Author       string       `json:"author"`
	TotalRatings int64        `json:"total_ratings"`
	Average      float64      `json:"average"`
	Counts       stats.Counts `json:"counts"`
}

// DateVolume is one entry of the busiest-dates list, built from daily
// ratings only.
type DateVolume struct {
	DateKey      string  `json:"date_key"`
	TotalRatings int64   `json:"total_ratings"`
	Average      float64 `json:"average"`
}

// RecentRating is one entry of the most-recent-ratings buffer.
type RecentRating struct {
	ItemID      string    `json:"item_id"`
	Rating      int       `json:"rating"`
	Mode        string    `json:"mode"`
	DateKey     string    `json:"date_key,omitempty"`
	Author      string    `json:"author,omitempty"`
	JokeText    string    `json:"joke_text,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}
