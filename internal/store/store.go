package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/fishdata/catchgrid/internal/config"
	"github.com/fishdata/catchgrid/internal/grid"
	"github.com/fishdata/catchgrid/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for collection runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, aoiPath, crs string, cellsize float64) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Run contents
	SaveCells(ctx context.Context, runID string, cells []grid.Cell) error
	SaveCatches(ctx context.Context, runID string, records []model.Catch) error
	ListCatches(ctx context.Context, runID string, limit, offset int) ([]model.Catch, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs a Store from configuration. The "none" driver is handled
// by callers; it never reaches here.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
