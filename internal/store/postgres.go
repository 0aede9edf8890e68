package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/fishdata/catchgrid/internal/db"
	"github.com/fishdata/catchgrid/internal/grid"
	"github.com/fishdata/catchgrid/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	aoi_path   TEXT NOT NULL,
	crs        TEXT NOT NULL,
	cell_size  DOUBLE PRECISION NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	catches    INTEGER NOT NULL DEFAULT 0,
	cells      INTEGER NOT NULL DEFAULT 0,
	failures   JSONB,
	dropped    INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cells (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	cell         INTEGER NOT NULL,
	grid_row     INTEGER NOT NULL,
	grid_col     INTEGER NOT NULL,
	queried      INTEGER NOT NULL DEFAULT 0,
	centroid_lng DOUBLE PRECISION NOT NULL,
	centroid_lat DOUBLE PRECISION NOT NULL,
	geom         BYTEA,
	PRIMARY KEY (run_id, cell)
);

CREATE TABLE IF NOT EXISTS catches (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	catch_id       TEXT NOT NULL,
	longitude      DOUBLE PRECISION NOT NULL,
	latitude       DOUBLE PRECISION NOT NULL,
	source         TEXT NOT NULL,
	origin_cell    INTEGER NOT NULL,
	caught_at      TEXT,
	species_id     TEXT,
	species_name   TEXT,
	waterbody_id   TEXT,
	waterbody_name TEXT,
	likes_count    INTEGER NOT NULL DEFAULT 0,
	body           TEXT,
	user_id        TEXT,
	raw            JSONB,
	PRIMARY KEY (run_id, catch_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_catches_run_id ON catches(run_id);
CREATE INDEX IF NOT EXISTS idx_catches_origin_cell ON catches(run_id, origin_cell);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, aoiPath, crs string, cellsize float64) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, aoi_path, crs, cell_size, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, aoiPath, crs, cellsize, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		AOIPath:   aoiPath,
		CRS:       crs,
		CellSize:  cellsize,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.Run) error {
	failuresJSON, err := json.Marshal(run.Failures)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal failures")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, catches = $2, cells = $3, failures = $4, dropped = $5, updated_at = $6 WHERE id = $7`,
		string(run.Status), run.Catches, run.Cells, failuresJSON, run.Dropped, time.Now().UTC(), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, aoi_path, crs, cell_size, status, catches, cells, failures, dropped, created_at, updated_at
		 FROM runs WHERE id = $1`,
		runID,
	)
	run, err := scanRunPG(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, aoi_path, crs, cell_size, status, catches, cells, failures, dropped, created_at, updated_at
	          FROM runs WHERE 1=1`
	var args []any
	arg := 0

	if filter.Status != "" {
		arg++
		query += ` AND status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	arg++
	query += ` LIMIT $` + strconv.Itoa(arg)
	args = append(args, limit)

	if filter.Offset > 0 {
		arg++
		query += ` OFFSET $` + strconv.Itoa(arg)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRunPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveCells(ctx context.Context, runID string, cells []grid.Cell) error {
	columns := []string{"run_id", "cell", "grid_row", "grid_col", "queried", "centroid_lng", "centroid_lat", "geom"}
	rows := make([][]any, 0, len(cells))
	for _, cell := range cells {
		geomBytes, err := cellEWKB(cell)
		if err != nil {
			return err
		}
		queried := 0
		if cell.Intersects {
			queried = 1
		}
		rows = append(rows, []any{
			runID, cell.Index, cell.Row, cell.Col, queried,
			cell.CentroidWGS84.X, cell.CentroidWGS84.Y, geomBytes,
		})
	}

	if _, err := db.CopyFrom(ctx, s.pool, "cells", columns, rows); err != nil {
		return eris.Wrapf(err, "postgres: save cells for run %s", runID)
	}
	return nil
}

func (s *PostgresStore) SaveCatches(ctx context.Context, runID string, records []model.Catch) error {
	cfg := db.UpsertConfig{
		Table: "catches",
		Columns: []string{
			"run_id", "catch_id", "longitude", "latitude", "source", "origin_cell", "caught_at",
			"species_id", "species_name", "waterbody_id", "waterbody_name", "likes_count", "body", "user_id", "raw",
		},
		ConflictKeys: []string{"run_id", "catch_id"},
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		var raw any
		if len(rec.Raw) > 0 {
			raw = []byte(rec.Raw)
		}
		rows = append(rows, []any{
			runID, rec.CatchID, rec.Longitude, rec.Latitude, string(rec.Source), rec.OriginCell,
			rec.CaughtAt, rec.SpeciesID, rec.SpeciesName, rec.WaterbodyID, rec.WaterbodyName,
			rec.LikesCount, rec.Text, rec.UserID, raw,
		})
	}

	if _, err := db.Upsert(ctx, s.pool, cfg, rows); err != nil {
		return eris.Wrapf(err, "postgres: save catches for run %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListCatches(ctx context.Context, runID string, limit, offset int) ([]model.Catch, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx,
		`SELECT catch_id, longitude, latitude, source, origin_cell, caught_at,
		        species_id, species_name, waterbody_id, waterbody_name, likes_count, body, user_id
		 FROM catches WHERE run_id = $1
		 ORDER BY origin_cell, catch_id
		 LIMIT $2 OFFSET $3`,
		runID, limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list catches")
	}
	defer rows.Close()

	var records []model.Catch
	for rows.Next() {
		var rec model.Catch
		var source string
		var caughtAt, speciesID, speciesName, waterbodyID, waterbodyName, body, userID *string
		err := rows.Scan(&rec.CatchID, &rec.Longitude, &rec.Latitude, &source, &rec.OriginCell,
			&caughtAt, &speciesID, &speciesName, &waterbodyID, &waterbodyName, &rec.LikesCount, &body, &userID)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan catch")
		}
		rec.Source = model.Source(source)
		rec.CaughtAt = deref(caughtAt)
		rec.SpeciesID = deref(speciesID)
		rec.SpeciesName = deref(speciesName)
		rec.WaterbodyID = deref(waterbodyID)
		rec.WaterbodyName = deref(waterbodyName)
		rec.Text = deref(body)
		rec.UserID = deref(userID)
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list catches iterate")
}

func scanRunPG(row scannable) (*model.Run, error) {
	var r model.Run
	var failuresJSON []byte

	err := row.Scan(&r.ID, &r.AOIPath, &r.CRS, &r.CellSize, &r.Status, &r.Catches, &r.Cells,
		&failuresJSON, &r.Dropped, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, err
	}

	if len(failuresJSON) > 0 && string(failuresJSON) != "null" {
		if err := json.Unmarshal(failuresJSON, &r.Failures); err != nil {
			return nil, eris.Wrap(err, "unmarshal failures")
		}
	}
	return &r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

