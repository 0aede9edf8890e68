// Package query fetches raw catch records for grid cells, handling
// pagination, rate limiting, retry on transient failures, and splitting of
// oversaturated bounding boxes.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fishdata/catchgrid/internal/resilience"
	"github.com/fishdata/catchgrid/pkg/rutilus"
)

// Config controls per-cell fetch behavior.
type Config struct {
	// PageSize is the records-per-page request size. Default and maximum:
	// rutilus.DefaultPageSize.
	PageSize int

	// MaxPages caps pages fetched per bounding box, guarding against
	// runaway queries. Default: 400.
	MaxPages int

	// SplitThreshold is the reported total count at which a bounding box is
	// split into quadrants and fetched recursively instead of paginated.
	// The API degrades on very deep pagination. Default: 10000.
	SplitThreshold int

	// MaxSplitDepth bounds the quadrant recursion. Default: 5.
	MaxSplitDepth int

	// RateLimit is the request rate in requests per second. Default: 4.
	RateLimit float64

	// RequestTimeout bounds a single page request attempt. A timed-out
	// attempt counts as transient and triggers the retry policy.
	// Default: 30s.
	RequestTimeout time.Duration

	// Retry controls backoff for transient failures.
	Retry resilience.Config
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 || c.PageSize > rutilus.DefaultPageSize {
		c.PageSize = rutilus.DefaultPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 400
	}
	if c.SplitThreshold <= 0 {
		c.SplitThreshold = 10000
	}
	if c.MaxSplitDepth <= 0 {
		c.MaxSplitDepth = 5
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 4
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	return c
}

// CellError reports that one cell's query could not be completed after
// retries. It is recoverable at the run level: the cell is skipped and
// recorded, other cells proceed.
type CellError struct {
	Cell int
	Err  error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("query cell %d: %v", e.Cell, e.Err)
}

func (e *CellError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves raw catch records for WGS84 bounding boxes. It is safe
// for concurrent use; the rate limiter is shared across cells.
type Fetcher struct {
	client  rutilus.Client
	limiter *rate.Limiter
	cfg     Config
}

// NewFetcher creates a Fetcher around a rutilus client.
func NewFetcher(client rutilus.Client, cfg Config) *Fetcher {
	cfg = cfg.withDefaults()
	return &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		cfg:     cfg,
	}
}

// FetchCell retrieves every raw catch record inside a cell's WGS84 bounding
// box, paginating until the API reports no further pages or MaxPages is
// reached. Failures after retry exhaustion are wrapped in *CellError.
func (f *Fetcher) FetchCell(ctx context.Context, cell int, bbox rutilus.BoundingBox) ([]json.RawMessage, error) {
	records, err := f.fetchBox(ctx, cell, bbox, 0)
	if err != nil {
		return nil, &CellError{Cell: cell, Err: err}
	}
	return records, nil
}

func (f *Fetcher) fetchBox(ctx context.Context, cell int, bbox rutilus.BoundingBox, depth int) ([]json.RawMessage, error) {
	log := zap.L().With(zap.Int("cell", cell), zap.Int("depth", depth))

	first, err := f.fetchPage(ctx, bbox, "")
	if err != nil {
		return nil, err
	}

	// A saturated box paginates poorly; split it into quadrants instead,
	// like the upstream map client does.
	if first.TotalCount >= f.cfg.SplitThreshold && depth < f.cfg.MaxSplitDepth {
		log.Info("splitting saturated bounding box",
			zap.Int("total_count", first.TotalCount),
		)
		var records []json.RawMessage
		for _, quad := range splitBBox(bbox) {
			sub, err := f.fetchBox(ctx, cell, quad, depth+1)
			if err != nil {
				return nil, err
			}
			records = append(records, sub...)
		}
		return records, nil
	}

	records := edgeNodes(first.Edges)
	page := first
	pages := 1

	for page.PageInfo.HasNextPage && len(page.Edges) > 0 {
		if pages >= f.cfg.MaxPages {
			log.Warn("page cap reached, truncating cell",
				zap.Int("pages", pages),
				zap.Int("collected", len(records)),
			)
			break
		}

		page, err = f.fetchPage(ctx, bbox, page.PageInfo.EndCursor)
		if err != nil {
			return nil, err
		}
		records = append(records, edgeNodes(page.Edges)...)
		pages++
	}

	return records, nil
}

// fetchPage issues one page request with rate limiting and bounded retry.
func (f *Fetcher) fetchPage(ctx context.Context, bbox rutilus.BoundingBox, after string) (*rutilus.CatchPage, error) {
	cfg := f.cfg.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("rutilus", "map_catches")
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*rutilus.CatchPage, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		reqCtx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
		defer cancel()

		return f.client.MapCatches(reqCtx, rutilus.MapCatchesRequest{
			BBox:  bbox,
			First: f.cfg.PageSize,
			After: after,
		})
	})
}

func edgeNodes(edges []rutilus.CatchEdge) []json.RawMessage {
	nodes := make([]json.RawMessage, 0, len(edges))
	for _, e := range edges {
		nodes = append(nodes, e.Node)
	}
	return nodes
}

// splitBBox quarters a bounding box at its midpoint.
func splitBBox(b rutilus.BoundingBox) [4]rutilus.BoundingBox {
	midLng := (b.MinLng + b.MaxLng) / 2
	midLat := (b.MinLat + b.MaxLat) / 2
	return [4]rutilus.BoundingBox{
		{MinLng: b.MinLng, MinLat: midLat, MaxLng: midLng, MaxLat: b.MaxLat}, // NW
		{MinLng: midLng, MinLat: midLat, MaxLng: b.MaxLng, MaxLat: b.MaxLat}, // NE
		{MinLng: b.MinLng, MinLat: b.MinLat, MaxLng: midLng, MaxLat: midLat}, // SW
		{MinLng: midLng, MinLat: b.MinLat, MaxLng: b.MaxLng, MaxLat: midLat}, // SE
	}
}
