package grid

import (
	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// LoadAOI reads the first polygon feature from an ESRI shapefile. The
// shapefile format does not carry a parseable CRS definition, so the caller
// supplies one (proj4 or EPSG:<code>).
func LoadAOI(path, crs string) (AOI, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return AOI{}, eris.Wrapf(err, "grid: open AOI shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}

		g := shpPolygon(poly)
		if g == nil {
			continue
		}

		zap.L().Debug("loaded AOI polygon",
			zap.String("path", path),
			zap.Int("rings", len(g)),
		)
		return AOI{Polygon: g, CRS: crs}, nil
	}

	return AOI{}, eris.Wrapf(ErrInvalidParameter, "no polygon feature in %s", path)
}

// shpPolygon converts a shapefile polygon's parts into a geom.Polygon,
// one ring per part.
func shpPolygon(p *shp.Polygon) geom.Polygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var g geom.Polygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		ring := make([]geom.Point, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, geom.Point{X: p.Points[j].X, Y: p.Points[j].Y})
		}
		if len(ring) < 3 {
			continue
		}
		g = append(g, ring)
	}

	if len(g) == 0 {
		return nil
	}
	return g
}
