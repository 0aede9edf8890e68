package grid

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectorWebMercatorToWGS84(t *testing.T) {
	p, err := NewProjector("EPSG:3857", WGS84)
	require.NoError(t, err)

	// Origin maps to origin.
	pt, err := p.Point(geom.Point{X: 0, Y: 0})
	require.NoError(t, err)
	assert.InDelta(t, 0, pt.X, 1e-6)
	assert.InDelta(t, 0, pt.Y, 1e-6)

	// One degree of longitude at the equator is ~111319.49m in mercator.
	pt, err = p.Point(geom.Point{X: 111319.49079327358, Y: 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pt.X, 1e-6)
}

func TestProjectorRoundTrip(t *testing.T) {
	fwd, err := NewProjector(WGS84, "EPSG:3857")
	require.NoError(t, err)
	inv, err := NewProjector("EPSG:3857", WGS84)
	require.NoError(t, err)

	orig := geom.Point{X: -122.4194, Y: 37.7749}
	projected, err := fwd.Point(orig)
	require.NoError(t, err)
	back, err := inv.Point(projected)
	require.NoError(t, err)

	assert.InDelta(t, orig.X, back.X, 1e-6)
	assert.InDelta(t, orig.Y, back.Y, 1e-6)
}

func TestProjectorGeomBounds(t *testing.T) {
	p, err := NewProjector(WGS84, WGS84)
	require.NoError(t, err)

	poly := geom.Polygon{{
		{X: 10, Y: 50},
		{X: 11, Y: 50},
		{X: 11, Y: 51},
		{X: 10, Y: 51},
	}}
	out, err := p.Geom(poly)
	require.NoError(t, err)

	b := out.Bounds()
	assert.InDelta(t, 10, b.Min.X, 1e-9)
	assert.InDelta(t, 51, b.Max.Y, 1e-9)
}

func TestResolveCRS(t *testing.T) {
	tests := []struct {
		name    string
		crs     string
		wantErr bool
	}{
		{name: "proj4_string", crs: WGS84},
		{name: "epsg_4326", crs: "EPSG:4326"},
		{name: "epsg_4326_lowercase", crs: "epsg:4326"},
		{name: "epsg_3857", crs: "EPSG:3857"},
		{name: "unknown_epsg", crs: "EPSG:27700", wantErr: true},
		{name: "empty", crs: "", wantErr: true},
		{name: "garbage", crs: "not a crs", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveCRS(tt.crs)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, eris.Is(err, ErrUnsupportedCRS))
				return
			}
			require.NoError(t, err)
		})
	}
}
