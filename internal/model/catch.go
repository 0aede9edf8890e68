package model

import (
	"encoding/json"
	"time"
)

// Source describes where a catch's coordinates came from.
type Source string

const (
	// SourceExplicit means the record carried its own point location or a
	// waterbody location.
	SourceExplicit Source = "explicit"
	// SourceGridFallback means the record had no usable location and was
	// assigned the WGS84 centroid of the grid cell that yielded it.
	SourceGridFallback Source = "grid-fallback"
)

// Catch is the canonical output record for one fishing-catch observation.
// Longitude and Latitude are always populated (WGS84): either from the
// record itself or from the origin cell's centroid.
type Catch struct {
	CatchID    string  `json:"catch_id"`
	Longitude  float64 `json:"longitude"`
	Latitude   float64 `json:"latitude"`
	Source     Source  `json:"source"`
	OriginCell int     `json:"origin_cell"`

	CaughtAt      string `json:"caught_at,omitempty"`
	SpeciesID     string `json:"species_id,omitempty"`
	SpeciesName   string `json:"species_name,omitempty"`
	WaterbodyID   string `json:"waterbody_id,omitempty"`
	WaterbodyName string `json:"waterbody_name,omitempty"`
	LikesCount    int    `json:"likes_count,omitempty"`
	Text          string `json:"text,omitempty"`
	UserID        string `json:"user_id,omitempty"`

	Raw json.RawMessage `json:"raw,omitempty"`
}

// CellFailure records a grid cell whose query could not be completed after
// retries. The run continues past these; callers decide whether a partially
// complete run counts as success.
type CellFailure struct {
	Cell int    `json:"cell"`
	Err  string `json:"error"`
}

// RunStatus represents the current state of a collection run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// Run represents one persisted collection run.
type Run struct {
	ID        string        `json:"id"`
	AOIPath   string        `json:"aoi_path"`
	CRS       string        `json:"crs"`
	CellSize  float64       `json:"cell_size"`
	Status    RunStatus     `json:"status"`
	Catches   int           `json:"catches"`
	Cells     int           `json:"cells"`
	Failures  []CellFailure `json:"failures,omitempty"`
	Dropped   int           `json:"dropped"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
