package summarycache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/groanlab/groanboard/internal/batch"
	"github.com/groanlab/groanboard/internal/metrics"
)

// DefaultTTL is how long a cached summary is considered fresh.
const DefaultTTL = 5 * time.Minute

// Summarizer produces the full summary document. Satisfied by
// batch.Summarizer.
type Summarizer interface {
	Summarize(ctx context.Context) (*batch.Summary, error)
}

// payload is the on-disk cache shape.
type payload struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Summary     *batch.Summary `json:"summary"`
}

// Result is one cache read: the summary, when it was generated, and
// whether it is older than the TTL.
type Result struct {
	Summary     *batch.Summary `json:"summary"`
	GeneratedAt time.Time      `json:"generated_at"`
	Stale       bool           `json:"stale"`
}

// Cache is a file-backed TTL cache over the batch summary. A full
// recompute is expensive, so stale reads regenerate at most once at a time
// and fall back to the last known payload when regeneration fails.
type Cache struct {
	path       string
	ttl        time.Duration
	summarizer Summarizer
	group      singleflight.Group
	nowFn      func() time.Time
}

// New creates a Cache writing to path. ttl=0 means a cached summary never
// goes stale on its own; only Refresh regenerates it.
// Panics if summarizer is nil, as this indicates a programming error.
func New(path string, ttl time.Duration, summarizer Summarizer) *Cache {
	if summarizer == nil {
		panic("summarycache: summarizer cannot be nil")
	}
	return &Cache{
		path:       path,
		ttl:        ttl,
		summarizer: summarizer,
		nowFn:      time.Now,
	}
}

// Load returns the cached summary, regenerating it first when the cache is
// missing or stale. When regeneration fails but a previous payload exists,
// that payload is returned marked stale instead of an error.
func (c *Cache) Load(ctx context.Context) (Result, error) {
	cached, err := c.read()
	if err == nil && !c.stale(cached.GeneratedAt) {
		return Result{Summary: cached.Summary, GeneratedAt: cached.GeneratedAt}, nil
	}
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("[SummaryCache] Cache file unreadable, regenerating", "path", c.path, "error", err)
	}

	return c.regenerate(ctx, cached)
}

// Refresh regenerates the summary unconditionally.
func (c *Cache) Refresh(ctx context.Context) (Result, error) {
	cached, _ := c.read()
	return c.regenerate(ctx, cached)
}

// regenerate recomputes the summary, coalescing concurrent callers into a
// single recompute. last may be nil when no previous payload exists.
func (c *Cache) regenerate(ctx context.Context, last *payload) (Result, error) {
	value, err, _ := c.group.Do("summary", func() (interface{}, error) {
		started := c.nowFn()
		summary, err := c.summarizer.Summarize(ctx)
		if err != nil {
			return nil, err
		}
		metrics.RecordSummaryRegenerated(c.nowFn().Sub(started).Seconds())

		p := &payload{GeneratedAt: c.nowFn().UTC(), Summary: summary}
		if err := c.write(p); err != nil {
			// The summary is still usable; losing the cache write only
			// costs a recompute on the next read.
			slog.Warn("[SummaryCache] Failed to persist summary", "path", c.path, "error", err)
		}
		return p, nil
	})
	if err != nil {
		if last != nil {
			slog.Warn("[SummaryCache] Regeneration failed, serving last known summary",
				"generated_at", last.GeneratedAt,
				"error", err)
			return Result{Summary: last.Summary, GeneratedAt: last.GeneratedAt, Stale: true}, nil
		}
		return Result{}, fmt.Errorf("regenerate summary: %w", err)
	}

	p := value.(*payload)
	slog.Info("[SummaryCache] Summary regenerated", "generated_at", p.GeneratedAt)
	return Result{Summary: p.Summary, GeneratedAt: p.GeneratedAt}, nil
}

// stale reports whether a payload generated at the given time is past the
// TTL. A zero TTL disables staleness entirely.
func (c *Cache) stale(generatedAt time.Time) bool {
	if c.ttl == 0 {
		return false
	}
	return c.nowFn().Sub(generatedAt) > c.ttl
}

func (c *Cache) read() (*payload, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse cache payload %q: %w", c.path, err)
	}
	if p.Summary == nil {
		return nil, fmt.Errorf("cache payload %q has no summary", c.path)
	}
	return &p, nil
}

// write persists the payload atomically via a temp file and rename, so a
// concurrent reader never observes a partial write.
func (c *Cache) write(p *payload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode cache payload: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".summary-*.json")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace cache file %q: %w", c.path, err)
	}
	return nil
}
