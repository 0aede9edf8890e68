package grid

import (
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
)

// WGS84 is the proj4 definition of the geographic CRS the catch API expects.
const WGS84 = "+proj=longlat +datum=WGS84 +no_defs"

// ErrUnsupportedCRS is returned when a CRS definition cannot be parsed or no
// transform path exists between two reference systems. It is fatal to the
// run: no query can be issued without WGS84 coordinates.
var ErrUnsupportedCRS = eris.New("grid: unsupported CRS")

// epsgShorthand maps the EPSG codes accepted as "EPSG:<code>" to their proj4
// definitions. Anything else must be given as a full proj4 string.
var epsgShorthand = map[string]string{
	"4326": WGS84,
	"3857": "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
}

// Projector transforms geometries and points between two coordinate
// reference systems. A Projector is safe for concurrent use once built.
type Projector struct {
	t proj.Transformer
}

// NewProjector builds a transform from srcCRS to dstCRS. Both are proj4
// strings or EPSG:<code> shorthands.
func NewProjector(srcCRS, dstCRS string) (*Projector, error) {
	src, err := resolveCRS(srcCRS)
	if err != nil {
		return nil, err
	}
	dst, err := resolveCRS(dstCRS)
	if err != nil {
		return nil, err
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, eris.Wrapf(ErrUnsupportedCRS, "no transform from %q to %q: %v", srcCRS, dstCRS, err)
	}
	return &Projector{t: t}, nil
}

// Geom transforms a geometry, returning a new geometry in the target CRS.
func (p *Projector) Geom(g geom.Geom) (geom.Geom, error) {
	out, err := g.Transform(p.t)
	if err != nil {
		return nil, eris.Wrapf(ErrUnsupportedCRS, "transform geometry: %v", err)
	}
	return out, nil
}

// Point transforms a single point.
func (p *Projector) Point(pt geom.Point) (geom.Point, error) {
	out, err := pt.Transform(p.t)
	if err != nil {
		return geom.Point{}, eris.Wrapf(ErrUnsupportedCRS, "transform point: %v", err)
	}
	return out.(geom.Point), nil
}

func resolveCRS(crs string) (*proj.SR, error) {
	def := strings.TrimSpace(crs)
	if def == "" {
		return nil, eris.Wrap(ErrUnsupportedCRS, "empty CRS definition")
	}

	if rest, ok := strings.CutPrefix(strings.ToUpper(def), "EPSG:"); ok {
		p4, known := epsgShorthand[rest]
		if !known {
			return nil, eris.Wrapf(ErrUnsupportedCRS, "EPSG:%s has no builtin definition, pass a proj4 string", rest)
		}
		def = p4
	}

	sr, err := proj.Parse(def)
	if err != nil {
		return nil, eris.Wrapf(ErrUnsupportedCRS, "parse %q: %v", crs, err)
	}
	return sr, nil
}
