package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishdata/catchgrid/internal/grid"
	"github.com/fishdata/catchgrid/internal/model"
	"github.com/fishdata/catchgrid/internal/query"
	"github.com/fishdata/catchgrid/pkg/rutilus"
)

// stripAOI returns a 3x1 degree strip in WGS84; with cellsize=1 it yields
// exactly three cells at indices 0, 1, 2.
func stripAOI() grid.AOI {
	return grid.AOI{
		Polygon: geom.Polygon{{
			{X: 0, Y: 0},
			{X: 3, Y: 0},
			{X: 3, Y: 1},
			{X: 0, Y: 1},
		}},
		CRS: "EPSG:4326",
	}
}

func rawCatch(id string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"_id": %q}`, id))
}

// fetcherFunc adapts a function to the CellFetcher interface.
type fetcherFunc func(ctx context.Context, cell int, bbox rutilus.BoundingBox) ([]json.RawMessage, error)

func (f fetcherFunc) FetchCell(ctx context.Context, cell int, bbox rutilus.BoundingBox) ([]json.RawMessage, error) {
	return f(ctx, cell, bbox)
}

func TestRunCollectsAllCells(t *testing.T) {
	var mu sync.Mutex
	queried := map[int]rutilus.BoundingBox{}

	fetcher := fetcherFunc(func(_ context.Context, cell int, bbox rutilus.BoundingBox) ([]json.RawMessage, error) {
		mu.Lock()
		queried[cell] = bbox
		mu.Unlock()
		return []json.RawMessage{rawCatch(fmt.Sprintf("c%d", cell))}, nil
	})

	result, err := New(fetcher, Options{}).Run(context.Background(), stripAOI(), 1)
	require.NoError(t, err)

	assert.Len(t, result.Records, 3)
	assert.Len(t, result.Grid, 3)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 3, result.CellsQueried)

	// Each cell was queried with its own WGS84 bounding box.
	require.Len(t, queried, 3)
	assert.InDelta(t, 0, queried[0].MinLng, 1e-9)
	assert.InDelta(t, 1, queried[0].MaxLng, 1e-9)
	assert.InDelta(t, 2, queried[2].MinLng, 1e-9)
}

func TestRunDeduplicatesAcrossCells(t *testing.T) {
	// The same catch id shows up in cells 0, 1, and 2 (adjacent bounding
	// boxes overlap at the API level). First-seen wins: it must be
	// attributed to cell 0 and appear exactly once.
	fetcher := fetcherFunc(func(_ context.Context, cell int, _ rutilus.BoundingBox) ([]json.RawMessage, error) {
		return []json.RawMessage{
			rawCatch("shared"),
			rawCatch(fmt.Sprintf("own-%d", cell)),
		}, nil
	})

	result, err := New(fetcher, Options{Workers: 4}).Run(context.Background(), stripAOI(), 1)
	require.NoError(t, err)

	assert.Len(t, result.Records, 4) // shared + 3 distinct
	assert.Equal(t, 2, result.Duplicates)

	byID := map[string]model.Catch{}
	for _, rec := range result.Records {
		byID[rec.CatchID] = rec
	}
	require.Contains(t, byID, "shared")
	assert.Equal(t, 0, byID["shared"].OriginCell)
}

func TestRunDedupDeterministicUnderConcurrency(t *testing.T) {
	fetcher := fetcherFunc(func(_ context.Context, cell int, _ rutilus.BoundingBox) ([]json.RawMessage, error) {
		return []json.RawMessage{rawCatch("shared")}, nil
	})

	for i := 0; i < 20; i++ {
		result, err := New(fetcher, Options{Workers: 3}).Run(context.Background(), stripAOI(), 1)
		require.NoError(t, err)
		require.Len(t, result.Records, 1)
		assert.Equal(t, 0, result.Records[0].OriginCell, "iteration %d", i)
	}
}

func TestRunContinuesPastCellFailure(t *testing.T) {
	fetcher := fetcherFunc(func(_ context.Context, cell int, _ rutilus.BoundingBox) ([]json.RawMessage, error) {
		if cell == 1 {
			return nil, &query.CellError{Cell: 1, Err: eris.New("retries exhausted")}
		}
		return []json.RawMessage{rawCatch(fmt.Sprintf("c%d", cell))}, nil
	})

	result, err := New(fetcher, Options{}).Run(context.Background(), stripAOI(), 1)
	require.NoError(t, err)

	assert.Len(t, result.Records, 2)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].Cell)
	assert.Contains(t, result.Failures[0].Err, "retries exhausted")
}

func TestRunSkipsNonIntersectingCells(t *testing.T) {
	// Lower-left triangle: the upper-right cell of the 2x2 grid does not
	// intersect and must never be queried.
	aoi := grid.AOI{
		Polygon: geom.Polygon{{
			{X: 0, Y: 0},
			{X: 2, Y: 0},
			{X: 0, Y: 2},
		}},
		CRS: "EPSG:4326",
	}

	var mu sync.Mutex
	var queried []int
	fetcher := fetcherFunc(func(_ context.Context, cell int, _ rutilus.BoundingBox) ([]json.RawMessage, error) {
		mu.Lock()
		queried = append(queried, cell)
		mu.Unlock()
		return nil, nil
	})

	result, err := New(fetcher, Options{Workers: 1}).Run(context.Background(), aoi, 1)
	require.NoError(t, err)

	assert.Len(t, result.Grid, 4)
	assert.NotContains(t, queried, 3)
	assert.Equal(t, 3, result.CellsQueried)
}

func TestRunCountsDroppedRecords(t *testing.T) {
	fetcher := fetcherFunc(func(_ context.Context, cell int, _ rutilus.BoundingBox) ([]json.RawMessage, error) {
		if cell != 0 {
			return nil, nil
		}
		return []json.RawMessage{
			rawCatch("good-1"),
			json.RawMessage(`{"caughtAtGmt": "no id here"}`),
			rawCatch("good-2"),
		}, nil
	})

	result, err := New(fetcher, Options{}).Run(context.Background(), stripAOI(), 1)
	require.NoError(t, err)

	assert.Len(t, result.Records, 2)
	assert.Equal(t, 1, result.Dropped)
}

func TestRunGridFallbackLocation(t *testing.T) {
	fetcher := fetcherFunc(func(_ context.Context, cell int, _ rutilus.BoundingBox) ([]json.RawMessage, error) {
		if cell == 1 {
			return []json.RawMessage{rawCatch("no-location")}, nil
		}
		return nil, nil
	})

	result, err := New(fetcher, Options{}).Run(context.Background(), stripAOI(), 1)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, model.SourceGridFallback, rec.Source)

	// Fallback coordinates equal cell 1's WGS84 centroid exactly.
	cell := result.Grid[1]
	assert.Equal(t, cell.CentroidWGS84.X, rec.Longitude)
	assert.Equal(t, cell.CentroidWGS84.Y, rec.Latitude)
}

func TestRunInvalidParametersAbortBeforeQuerying(t *testing.T) {
	called := false
	fetcher := fetcherFunc(func(context.Context, int, rutilus.BoundingBox) ([]json.RawMessage, error) {
		called = true
		return nil, nil
	})

	_, err := New(fetcher, Options{}).Run(context.Background(), stripAOI(), -5)
	require.Error(t, err)
	assert.True(t, eris.Is(err, grid.ErrInvalidParameter))
	assert.False(t, called)
}

func TestRunCancellationReturnsPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fetcher := fetcherFunc(func(_ context.Context, cell int, _ rutilus.BoundingBox) ([]json.RawMessage, error) {
		if cell == 0 {
			// Cancel after the first cell completes.
			defer cancel()
			return []json.RawMessage{rawCatch("c0")}, nil
		}
		return []json.RawMessage{rawCatch(fmt.Sprintf("c%d", cell))}, nil
	})

	result, err := New(fetcher, Options{Workers: 1}).Run(ctx, stripAOI(), 1)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	// Cell 0 made it in; later cells were never issued and are not
	// recorded as failures.
	require.Len(t, result.Records, 1)
	assert.Equal(t, "c0", result.Records[0].CatchID)
	assert.Empty(t, result.Failures)
}

func TestRunKeepRaw(t *testing.T) {
	fetcher := fetcherFunc(func(_ context.Context, cell int, _ rutilus.BoundingBox) ([]json.RawMessage, error) {
		return []json.RawMessage{rawCatch(fmt.Sprintf("c%d", cell))}, nil
	})

	result, err := New(fetcher, Options{KeepRaw: true}).Run(context.Background(), stripAOI(), 1)
	require.NoError(t, err)

	require.Len(t, result.Raw, 3)
	assert.JSONEq(t, `{"_id": "c1"}`, string(result.Raw[1][0]))
}
