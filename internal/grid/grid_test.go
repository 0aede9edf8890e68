package grid

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// squareAOI returns a rectangular AOI from (0,0) to (w,h) in web mercator
// meters, a projected CRS.
func squareAOI(w, h float64) AOI {
	return AOI{
		Polygon: geom.Polygon{{
			{X: 0, Y: 0},
			{X: w, Y: 0},
			{X: w, Y: h},
			{X: 0, Y: h},
		}},
		CRS: "EPSG:3857",
	}
}

func TestGenerateExampleGrid(t *testing.T) {
	// 4000x4000 box with cellsize 2000 yields exactly 4 uniform cells.
	cells, err := Generate(squareAOI(4000, 4000), 2000)
	require.NoError(t, err)
	require.Len(t, cells, 4)

	wantRowCol := [][2]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	wantCentroid := []geom.Point{
		{X: 1000, Y: 1000},
		{X: 3000, Y: 1000},
		{X: 1000, Y: 3000},
		{X: 3000, Y: 3000},
	}

	for i, c := range cells {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, wantRowCol[i][0], c.Row, "cell %d row", i)
		assert.Equal(t, wantRowCol[i][1], c.Col, "cell %d col", i)
		assert.InDelta(t, wantCentroid[i].X, c.Centroid.X, 1e-9, "cell %d centroid x", i)
		assert.InDelta(t, wantCentroid[i].Y, c.Centroid.Y, 1e-9, "cell %d centroid y", i)
		assert.InDelta(t, 2000*2000, c.Geom.Area(), 1e-6, "cell %d area", i)
		assert.True(t, c.Intersects, "cell %d intersects", i)
	}
}

func TestGenerateTilesBoundingBoxExactly(t *testing.T) {
	tests := []struct {
		name     string
		w, h     float64
		cellsize float64
	}{
		{name: "even_division", w: 4000, h: 4000, cellsize: 1000},
		{name: "clipped_right_column", w: 5000, h: 4000, cellsize: 2000},
		{name: "clipped_top_row", w: 4000, h: 3000, cellsize: 2000},
		{name: "clipped_both", w: 2500, h: 1700, cellsize: 1000},
		{name: "single_cell", w: 500, h: 500, cellsize: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells, err := Generate(squareAOI(tt.w, tt.h), tt.cellsize)
			require.NoError(t, err)

			ncols := int(math.Ceil(tt.w / tt.cellsize))
			nrows := int(math.Ceil(tt.h / tt.cellsize))
			require.Len(t, cells, ncols*nrows)

			// No gaps, no overlaps: clipped cells sum to the box area and
			// every cell stays inside the box.
			var total float64
			for _, c := range cells {
				b := c.Geom.Bounds()
				assert.GreaterOrEqual(t, b.Min.X, 0.0)
				assert.GreaterOrEqual(t, b.Min.Y, 0.0)
				assert.LessOrEqual(t, b.Max.X, tt.w)
				assert.LessOrEqual(t, b.Max.Y, tt.h)
				total += c.Geom.Area()
			}
			assert.InDelta(t, tt.w*tt.h, total, 1e-6)
		})
	}
}

func TestGenerateDeterministic(t *testing.T) {
	aoi := squareAOI(5000, 3000)

	first, err := Generate(aoi, 1700)
	require.NoError(t, err)
	second, err := Generate(aoi, 1700)
	require.NoError(t, err)

	// Bit-reproducible: identical sequence, indices, and coordinates.
	assert.Equal(t, first, second)
}

func TestGenerateMarksNonIntersectingCells(t *testing.T) {
	// Triangle covering the lower-left half of a 4000x4000 box. The upper
	// right cell of a 2x2 grid does not touch it.
	aoi := AOI{
		Polygon: geom.Polygon{{
			{X: 0, Y: 0},
			{X: 4000, Y: 0},
			{X: 0, Y: 4000},
		}},
		CRS: "EPSG:3857",
	}

	cells, err := Generate(aoi, 2000)
	require.NoError(t, err)
	require.Len(t, cells, 4)

	assert.True(t, cells[0].Intersects)  // (row 0, col 0)
	assert.True(t, cells[1].Intersects)  // (row 0, col 1)
	assert.True(t, cells[2].Intersects)  // (row 1, col 0)
	assert.False(t, cells[3].Intersects) // (row 1, col 1) only touches the hypotenuse
}

func TestGenerateInvalidCellsize(t *testing.T) {
	for _, cellsize := range []float64{0, -1, -2000} {
		_, err := Generate(squareAOI(4000, 4000), cellsize)
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrInvalidParameter), "cellsize %g", cellsize)
	}
}

func TestGenerateMalformedAOI(t *testing.T) {
	tests := []struct {
		name string
		aoi  AOI
	}{
		{name: "no_rings", aoi: AOI{Polygon: geom.Polygon{}, CRS: "EPSG:3857"}},
		{name: "degenerate_ring", aoi: AOI{Polygon: geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 1}}}, CRS: "EPSG:3857"}},
		{name: "zero_extent", aoi: AOI{Polygon: geom.Polygon{{{X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}}}, CRS: "EPSG:3857"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.aoi, 1000)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalidParameter))
		})
	}
}

func TestGenerateWGS84Fields(t *testing.T) {
	// AOI already in geographic coordinates: WGS84 centroid matches the
	// native one and the WGS84 bounds match the cell bounds.
	aoi := AOI{
		Polygon: geom.Polygon{{
			{X: 10, Y: 50},
			{X: 12, Y: 50},
			{X: 12, Y: 52},
			{X: 10, Y: 52},
		}},
		CRS: "EPSG:4326",
	}

	cells, err := Generate(aoi, 1)
	require.NoError(t, err)
	require.Len(t, cells, 4)

	for _, c := range cells {
		assert.InDelta(t, c.Centroid.X, c.CentroidWGS84.X, 1e-9)
		assert.InDelta(t, c.Centroid.Y, c.CentroidWGS84.Y, 1e-9)

		b := c.Geom.Bounds()
		assert.InDelta(t, b.Min.X, c.BoundsWGS84.Min.X, 1e-9)
		assert.InDelta(t, b.Max.Y, c.BoundsWGS84.Max.Y, 1e-9)
	}
}

func TestGenerateUnsupportedCRS(t *testing.T) {
	aoi := squareAOI(1000, 1000)
	aoi.CRS = "EPSG:99999"

	_, err := Generate(aoi, 500)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnsupportedCRS))
}
