// Package grid partitions an area of interest into a uniform square grid and
// handles coordinate-system transforms between the AOI's native CRS and the
// WGS84 coordinates required by the catch API.
package grid

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
)

// ErrInvalidParameter is returned for a non-positive cell size or a malformed
// AOI polygon. It is fatal: nothing is queried.
var ErrInvalidParameter = eris.New("grid: invalid parameter")

// AOI is the area of interest: a polygon in an arbitrary coordinate
// reference system. The first ring is the outer boundary; any further rings
// are holes.
type AOI struct {
	Polygon geom.Polygon
	CRS     string // proj4 definition or EPSG:<code> shorthand
}

// Cell is one square tile of the AOI's bounding box. Cells at the top row
// and rightmost column are clipped to the bounding box, so the grid tiles
// the box exactly with no gaps or overlaps.
type Cell struct {
	Index int // position in enumeration order (row-major from the southwest corner)
	Row   int
	Col   int

	Geom     geom.Polygon // native CRS, counter-clockwise ring
	Centroid geom.Point   // native CRS

	CentroidWGS84 geom.Point
	BoundsWGS84   *geom.Bounds

	// Intersects is true when the cell overlaps the AOI polygon. Cells
	// outside the AOI are kept in the sequence for grid output but are
	// never queried.
	Intersects bool
}

// BoundingBox returns the axis-aligned extent of a polygon in its native CRS.
func BoundingBox(p geom.Polygonal) *geom.Bounds {
	return p.Bounds()
}

// Generate lays out square cells of side cellsize over the AOI's bounding
// box, row-major starting at the southwest corner (rows advance northward,
// columns eastward). Boundary cells are clipped to the box rather than
// overshooting it, so the cell count is always
// ceil(width/cellsize) * ceil(height/cellsize).
//
// Enumeration order and cell indices are deterministic for identical inputs.
func Generate(aoi AOI, cellsize float64) ([]Cell, error) {
	if cellsize <= 0 {
		return nil, eris.Wrapf(ErrInvalidParameter, "cellsize %g must be positive", cellsize)
	}
	if err := validatePolygon(aoi.Polygon); err != nil {
		return nil, err
	}

	proj, err := NewProjector(aoi.CRS, WGS84)
	if err != nil {
		return nil, err
	}

	b := aoi.Polygon.Bounds()
	width := b.Max.X - b.Min.X
	height := b.Max.Y - b.Min.Y
	if width <= 0 || height <= 0 {
		return nil, eris.Wrap(ErrInvalidParameter, "AOI bounding box has empty extent")
	}

	ncols := int(math.Ceil(width / cellsize))
	nrows := int(math.Ceil(height / cellsize))

	cells := make([]Cell, 0, nrows*ncols)
	for row := 0; row < nrows; row++ {
		for col := 0; col < ncols; col++ {
			x0 := b.Min.X + float64(col)*cellsize
			y0 := b.Min.Y + float64(row)*cellsize
			x1 := math.Min(x0+cellsize, b.Max.X)
			y1 := math.Min(y0+cellsize, b.Max.Y)

			// Ring goes counter-clockwise.
			poly := geom.Polygon{{
				{X: x0, Y: y0},
				{X: x1, Y: y0},
				{X: x1, Y: y1},
				{X: x0, Y: y1},
			}}

			cell := Cell{
				Index:      row*ncols + col,
				Row:        row,
				Col:        col,
				Geom:       poly,
				Centroid:   poly.Centroid(),
				Intersects: intersects(poly, aoi.Polygon),
			}

			wgs84Geom, err := proj.Geom(poly)
			if err != nil {
				return nil, err
			}
			cell.BoundsWGS84 = wgs84Geom.Bounds()

			cell.CentroidWGS84, err = proj.Point(cell.Centroid)
			if err != nil {
				return nil, err
			}

			cells = append(cells, cell)
		}
	}

	return cells, nil
}

func validatePolygon(p geom.Polygon) error {
	if len(p) == 0 {
		return eris.Wrap(ErrInvalidParameter, "AOI polygon has no rings")
	}
	if len(p[0]) < 3 {
		return eris.Wrapf(ErrInvalidParameter, "AOI outer ring has %d vertices, need at least 3", len(p[0]))
	}
	return nil
}

// intersects reports whether the cell polygon overlaps the AOI with nonzero
// area. Cells that merely touch the AOI boundary do not count.
func intersects(cell geom.Polygon, aoi geom.Polygonal) bool {
	cb, ab := cell.Bounds(), aoi.Bounds()
	if cb.Min.X > ab.Max.X || cb.Max.X < ab.Min.X ||
		cb.Min.Y > ab.Max.Y || cb.Max.Y < ab.Min.Y {
		return false
	}
	isect := cell.Intersection(aoi)
	if isect == nil {
		return false
	}
	return isect.Area() > 0
}
