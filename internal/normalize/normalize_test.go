package normalize

import (
	"encoding/json"
	"testing"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishdata/catchgrid/internal/grid"
	"github.com/fishdata/catchgrid/internal/model"
)

var originCell = grid.Cell{
	Index:         6,
	Row:           1,
	Col:           2,
	CentroidWGS84: geom.Point{X: -93.25, Y: 44.75},
}

func TestNormalizeExplicitPointLocation(t *testing.T) {
	raw := json.RawMessage(`{
		"_id": "catch-1",
		"caughtAtGmt": "2023-06-01T12:00:00Z",
		"latitude": 44.9,
		"longitude": -93.1,
		"species": {"_id": "sp-1", "displayName": "Walleye"}
	}`)

	c, err := Normalize(raw, originCell)
	require.NoError(t, err)

	assert.Equal(t, "catch-1", c.CatchID)
	assert.Equal(t, model.SourceExplicit, c.Source)
	assert.InDelta(t, -93.1, c.Longitude, 1e-9)
	assert.InDelta(t, 44.9, c.Latitude, 1e-9)
	assert.Equal(t, 6, c.OriginCell)
	assert.Equal(t, "Walleye", c.SpeciesName)
	assert.Equal(t, "2023-06-01T12:00:00Z", c.CaughtAt)
	assert.JSONEq(t, string(raw), string(c.Raw))
}

func TestNormalizeWaterbodyLocation(t *testing.T) {
	raw := json.RawMessage(`{
		"_id": "catch-2",
		"post": {
			"catch": {
				"fishingWater": {
					"_id": "fw-9",
					"displayName": "Lake Minnetonka",
					"latitude": 44.92,
					"longitude": -93.58
				},
				"species": {"_id": "sp-2", "displayName": "Northern Pike"}
			},
			"likesCount": 3,
			"text": {"text": "nice one"},
			"user": {"_id": "user-7"}
		}
	}`)

	c, err := Normalize(raw, originCell)
	require.NoError(t, err)

	assert.Equal(t, model.SourceExplicit, c.Source)
	assert.InDelta(t, -93.58, c.Longitude, 1e-9)
	assert.InDelta(t, 44.92, c.Latitude, 1e-9)
	assert.Equal(t, "fw-9", c.WaterbodyID)
	assert.Equal(t, "Lake Minnetonka", c.WaterbodyName)
	assert.Equal(t, "Northern Pike", c.SpeciesName)
	assert.Equal(t, 3, c.LikesCount)
	assert.Equal(t, "nice one", c.Text)
	assert.Equal(t, "user-7", c.UserID)
}

func TestNormalizeGridFallback(t *testing.T) {
	raw := json.RawMessage(`{"_id": "catch-3", "caughtAtGmt": "2023-07-04T08:00:00Z"}`)

	c, err := Normalize(raw, originCell)
	require.NoError(t, err)

	assert.Equal(t, model.SourceGridFallback, c.Source)
	assert.InDelta(t, originCell.CentroidWGS84.X, c.Longitude, 1e-12)
	assert.InDelta(t, originCell.CentroidWGS84.Y, c.Latitude, 1e-12)
	assert.Equal(t, 6, c.OriginCell)
}

func TestNormalizeWaterbodyWithoutCoordinates(t *testing.T) {
	// Waterbody reference without a location still falls back to the cell
	// centroid, but keeps the waterbody metadata.
	raw := json.RawMessage(`{
		"_id": "catch-4",
		"post": {"catch": {"fishingWater": {"_id": "fw-1", "displayName": "Unknown Creek"}}}
	}`)

	c, err := Normalize(raw, originCell)
	require.NoError(t, err)

	assert.Equal(t, model.SourceGridFallback, c.Source)
	assert.Equal(t, "fw-1", c.WaterbodyID)
	assert.InDelta(t, originCell.CentroidWGS84.X, c.Longitude, 1e-12)
}

func TestNormalizeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "missing_id", raw: `{"caughtAtGmt": "2023-06-01T12:00:00Z"}`},
		{name: "empty_id", raw: `{"_id": ""}`},
		{name: "not_json", raw: `]{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(json.RawMessage(tt.raw), originCell)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrMalformedRecord))
		})
	}
}

func TestNormalizeIgnoresUnknownFields(t *testing.T) {
	raw := json.RawMessage(`{
		"_id": "catch-5",
		"someNewField": {"added": "by the provider"},
		"__typename": "Catch"
	}`)

	c, err := Normalize(raw, originCell)
	require.NoError(t, err)
	assert.Equal(t, "catch-5", c.CatchID)
}
