// Package collector drives the collection pipeline: grid enumeration,
// per-cell querying, normalization, and deduplication of catches seen via
// overlapping cells.
package collector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fishdata/catchgrid/internal/grid"
	"github.com/fishdata/catchgrid/internal/model"
	"github.com/fishdata/catchgrid/internal/normalize"
	"github.com/fishdata/catchgrid/pkg/rutilus"
)

// CellFetcher retrieves raw catch records for one cell's WGS84 bounding box.
type CellFetcher interface {
	FetchCell(ctx context.Context, cell int, bbox rutilus.BoundingBox) ([]json.RawMessage, error)
}

// Options configures a Collector.
type Options struct {
	// Workers bounds concurrent cell queries. Default: 4. Cells are
	// independent; results are committed in enumeration order regardless of
	// completion order, so concurrency never changes the output.
	Workers int

	// KeepRaw retains each cell's raw API records on the Result for
	// audit output.
	KeepRaw bool
}

// Result is the outcome of one collection run. A Result accompanied by a
// context error still carries everything accumulated before cancellation.
type Result struct {
	Records  []model.Catch
	Grid     []grid.Cell
	Failures []model.CellFailure

	// Dropped counts raw records discarded as malformed.
	Dropped int
	// Duplicates counts records discarded because their catch id was
	// already seen via an earlier cell.
	Duplicates int
	// CellsQueried counts intersecting cells whose query completed
	// (successfully or not).
	CellsQueried int

	// Raw holds each cell's raw API records, keyed by cell index.
	// Populated only with Options.KeepRaw.
	Raw map[int][]json.RawMessage
}

// Collector owns the mutable state of a run: the seen-identifier set and the
// accumulating record collection. It is not shared between runs.
type Collector struct {
	fetcher CellFetcher
	opts    Options
}

// New creates a Collector.
func New(fetcher CellFetcher, opts Options) *Collector {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Collector{fetcher: fetcher, opts: opts}
}

type cellOutcome struct {
	fetched bool
	raw     []json.RawMessage
	err     error
}

// Run partitions the AOI into cells of side cellsize, queries every
// intersecting cell, and merges the results into a deduplicated record set.
//
// Per-cell query failures do not abort the run; they are returned in
// Result.Failures. Cancellation stops issuing new cell queries and returns
// the partial result alongside the context's error. Parameter and CRS
// errors are fatal and happen before any querying.
func (c *Collector) Run(ctx context.Context, aoi grid.AOI, cellsize float64) (*Result, error) {
	log := zap.L().With(zap.String("component", "collector"))
	start := time.Now()

	cells, err := grid.Generate(aoi, cellsize)
	if err != nil {
		return nil, err
	}

	intersecting := 0
	for _, cell := range cells {
		if cell.Intersects {
			intersecting++
		}
	}
	log.Info("grid generated",
		zap.Int("cells", len(cells)),
		zap.Int("intersecting", intersecting),
		zap.Float64("cellsize", cellsize),
	)

	// Fetch cells concurrently into per-cell slots. The merge below walks
	// the slots in enumeration order, which keeps dedup deterministic:
	// "first seen" always means "lowest cell index", not "first completed".
	outcomes := make([]cellOutcome, len(cells))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)

	for i := range cells {
		cell := &cells[i]
		if !cell.Intersects {
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			raw, err := c.fetcher.FetchCell(gctx, cell.Index, cellBBox(cell))
			if err != nil {
				// A cell interrupted by cancellation is neither fetched nor
				// failed; it is simply absent from the partial result.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// Cell-level failure: record it, keep going.
				outcomes[cell.Index] = cellOutcome{fetched: true, err: err}
				log.Warn("cell query failed", zap.Int("cell", cell.Index), zap.Error(err))
				return nil
			}
			outcomes[cell.Index] = cellOutcome{fetched: true, raw: raw}

			log.Debug("cell fetched",
				zap.Int("cell", cell.Index),
				zap.Int("records", len(raw)),
			)
			return nil
		})
	}

	runErr := g.Wait()
	result := c.merge(cells, outcomes, log)

	log.Info("collection run complete",
		zap.Int("catches", len(result.Records)),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("dropped", result.Dropped),
		zap.Int("failed_cells", len(result.Failures)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if runErr != nil && !eris.Is(runErr, context.Canceled) && !eris.Is(runErr, context.DeadlineExceeded) {
		return result, runErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Warn("run canceled, returning partial results")
		return result, ctxErr
	}
	return result, nil
}

// merge walks cells in enumeration order, normalizing raw records and
// discarding catch ids already seen. First-seen wins: the lowest-index cell
// that yields an id determines the catch's attributed origin cell.
func (c *Collector) merge(cells []grid.Cell, outcomes []cellOutcome, log *zap.Logger) *Result {
	result := &Result{Grid: cells}
	if c.opts.KeepRaw {
		result.Raw = make(map[int][]json.RawMessage)
	}

	seen := make(map[string]struct{})
	for i := range cells {
		cell := &cells[i]
		out := outcomes[i]
		if !cell.Intersects || !out.fetched {
			continue
		}
		result.CellsQueried++

		if out.err != nil {
			result.Failures = append(result.Failures, model.CellFailure{
				Cell: cell.Index,
				Err:  out.err.Error(),
			})
			continue
		}

		if c.opts.KeepRaw && len(out.raw) > 0 {
			result.Raw[cell.Index] = out.raw
		}

		for _, raw := range out.raw {
			rec, err := normalize.Normalize(raw, *cell)
			if err != nil {
				result.Dropped++
				log.Debug("dropped malformed record", zap.Int("cell", cell.Index), zap.Error(err))
				continue
			}
			if _, dup := seen[rec.CatchID]; dup {
				result.Duplicates++
				continue
			}
			seen[rec.CatchID] = struct{}{}
			result.Records = append(result.Records, rec)
		}
	}

	return result
}

func cellBBox(cell *grid.Cell) rutilus.BoundingBox {
	b := cell.BoundsWGS84
	return rutilus.BoundingBox{
		MinLng: b.Min.X,
		MinLat: b.Min.Y,
		MaxLng: b.Max.X,
		MaxLat: b.Max.Y,
	}
}
