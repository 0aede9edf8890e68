package output

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/fishdata/catchgrid/internal/grid"
)

// WriteGridShapefile writes the grid cells as a polygon shapefile in the
// grid's native coordinate system, with one attribute row per cell.
func WriteGridShapefile(path string, cells []grid.Cell) error {
	return writeCells(path, cells, nativeRing)
}

// WriteGridShapefileWGS84 writes the grid cells as a polygon shapefile in
// WGS84. Cells are written as their reprojected bounding rectangles, the
// same boxes used to query the remote API.
func WriteGridShapefileWGS84(path string, cells []grid.Cell) error {
	return writeCells(path, cells, wgs84Ring)
}

func writeCells(path string, cells []grid.Cell, ring func(grid.Cell) []shp.Point) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrap(err, "output: create shapefile")
	}
	defer w.Close()

	fields := []shp.Field{
		shp.NumberField("CELL", 10),
		shp.NumberField("ROW", 10),
		shp.NumberField("COL", 10),
		shp.NumberField("QUERIED", 1),
		shp.FloatField("CEN_LON", 19, 9),
		shp.FloatField("CEN_LAT", 19, 9),
	}
	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "output: set shapefile fields")
	}

	for _, cell := range cells {
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring(cell)}))
		n := w.Write(&poly)

		queried := 0
		if cell.Intersects {
			queried = 1
		}
		attrs := []interface{}{
			cell.Index, cell.Row, cell.Col, queried,
			cell.CentroidWGS84.X, cell.CentroidWGS84.Y,
		}
		for i, val := range attrs {
			if err := w.WriteAttribute(int(n), i, val); err != nil {
				return eris.Wrapf(err, "output: write attribute for cell %d", cell.Index)
			}
		}
	}

	return nil
}

// nativeRing returns the cell's polygon ring in the grid's native
// coordinate system, closed for shapefile output.
func nativeRing(cell grid.Cell) []shp.Point {
	ring := cell.Geom[0]
	pts := make([]shp.Point, 0, len(ring)+1)
	for _, pt := range ring {
		pts = append(pts, shp.Point{X: pt.X, Y: pt.Y})
	}
	pts = append(pts, pts[0])
	return pts
}

func wgs84Ring(cell grid.Cell) []shp.Point {
	b := cell.BoundsWGS84
	return []shp.Point{
		{X: b.Min.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Min.Y},
	}
}
