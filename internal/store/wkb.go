package store

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/fishdata/catchgrid/internal/grid"
)

// cellEWKB encodes a cell's WGS84 bounding rectangle as EWKB with SRID 4326.
// The rectangle is the same box used to query the remote API, so persisted
// cells can be rendered or joined spatially downstream.
func cellEWKB(cell grid.Cell) ([]byte, error) {
	b := cell.BoundsWGS84
	if b == nil {
		return nil, nil
	}

	ring := []geom.Coord{
		{b.Min.X, b.Min.Y},
		{b.Max.X, b.Min.Y},
		{b.Max.X, b.Max.Y},
		{b.Min.X, b.Max.Y},
		{b.Min.X, b.Min.Y},
	}
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{ring}).SetSRID(4326)

	data, err := ewkb.Marshal(poly, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "store: encode cell %d geometry", cell.Index)
	}
	return data, nil
}
