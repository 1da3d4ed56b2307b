package dashboard

import (
	"time"

	"github.com/groanlab/groanboard/internal/core/stats"
)

// GlobalStats is the all-time aggregate across every rating.
type GlobalStats struct {
	TotalRatings  int64        `json:"total_ratings"`
	AverageRating float64      `json:"average_rating"`
	Counts        stats.Counts `json:"counts"`
	LastRatedAt   time.Time    `json:"last_rated_at"`
}

// AuthorStats is one author's aggregate block.
type AuthorStats struct {
	Author       string       `json:"author"`
	TotalRatings int64        `json:"total_ratings"`
	Average      float64      `json:"average"`
	Counts       stats.Counts `json:"counts"`
}

// ItemStats is one item partition's aggregate. Unknown items report the
// zero-valued shape rather than an error, since "never rated" is a valid
// answer.
type ItemStats struct {
	ItemID       string       `json:"item_id"`
	Mode         string       `json:"mode"`
	DateKey      string       `json:"date_key,omitempty"`
	TotalRatings int64        `json:"total_ratings"`
	Average      float64      `json:"average"`
	Counts       stats.Counts `json:"counts"`
	LastRatedAt  time.Time    `json:"last_rated_at"`
	JokeText     string       `json:"joke_text,omitempty"`
	Author       string       `json:"author,omitempty"`
}

// RecentRating is one entry of the recent-activity feed.
type RecentRating struct {
	ItemID      string    `json:"item_id"`
	Rating      int       `json:"rating"`
	Mode        string    `json:"mode"`
	DateKey     string    `json:"date_key,omitempty"`
	Author      string    `json:"author,omitempty"`
	JokeText    string    `json:"joke_text,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Dashboard is the full projection document served to the UI.
type Dashboard struct {
	Global        GlobalStats       `json:"global"`
	Authors       []AuthorStats     `json:"authors"`
	TopPerformers []stats.Performer `json:"top_performers"`
	RecentRatings []RecentRating    `json:"recent_ratings"`
}
