package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/fishdata/catchgrid/internal/grid"
	"github.com/fishdata/catchgrid/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	aoi_path   TEXT NOT NULL,
	crs        TEXT NOT NULL,
	cell_size  REAL NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	catches    INTEGER NOT NULL DEFAULT 0,
	cells      INTEGER NOT NULL DEFAULT 0,
	failures   TEXT,
	dropped    INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cells (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	cell         INTEGER NOT NULL,
	grid_row     INTEGER NOT NULL,
	grid_col     INTEGER NOT NULL,
	queried      INTEGER NOT NULL DEFAULT 0,
	centroid_lng REAL NOT NULL,
	centroid_lat REAL NOT NULL,
	geom         BLOB,
	PRIMARY KEY (run_id, cell)
);

CREATE TABLE IF NOT EXISTS catches (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	catch_id       TEXT NOT NULL,
	longitude      REAL NOT NULL,
	latitude       REAL NOT NULL,
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
	raw            TEXT,
	PRIMARY KEY (run_id, catch_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_catches_run_id ON catches(run_id);
CREATE INDEX IF NOT EXISTS idx_catches_origin_cell ON catches(run_id, origin_cell);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, aoiPath, crs string, cellsize float64) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, aoi_path, crs, cell_size, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, aoiPath, crs, cellsize, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	failuresJSON, err := json.Marshal(run.Failures)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal failures")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, catches = ?, cells = ?, failures = ?, dropped = ?, updated_at = ? WHERE id = ?`,
		string(run.Status), run.Catches, run.Cells, string(failuresJSON), run.Dropped, time.Now().UTC(), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, aoi_path, crs, cell_size, status, catches, cells, failures, dropped, created_at, updated_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, aoi_path, crs, cell_size, status, catches, cells, failures, dropped, created_at, updated_at
	          FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveCells(ctx context.Context, runID string, cells []grid.Cell) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save cells")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cells (run_id, cell, grid_row, grid_col, queried, centroid_lng, centroid_lat, geom)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, cell) DO NOTHING`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert cell")
	}
	defer stmt.Close()

	for _, cell := range cells {
		geomBytes, err := cellEWKB(cell)
		if err != nil {
			return err
		}
		queried := 0
		if cell.Intersects {
			queried = 1
		}
		_, err = stmt.ExecContext(ctx,
			runID, cell.Index, cell.Row, cell.Col, queried,
			cell.CentroidWGS84.X, cell.CentroidWGS84.Y, geomBytes,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert cell %d", cell.Index)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save cells")
}

func (s *SQLiteStore) SaveCatches(ctx context.Context, runID string, records []model.Catch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save catches")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO catches (run_id, catch_id, longitude, latitude, source, origin_cell, caught_at,
		                      species_id, species_name, waterbody_id, waterbody_name, likes_count, body, user_id, raw)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, catch_id) DO NOTHING`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert catch")
	}
	defer stmt.Close()

	for _, rec := range records {
		var raw any
		if len(rec.Raw) > 0 {
			raw = string(rec.Raw)
		}
		_, err = stmt.ExecContext(ctx,
			runID, rec.CatchID, rec.Longitude, rec.Latitude, string(rec.Source), rec.OriginCell,
			rec.CaughtAt, rec.SpeciesID, rec.SpeciesName, rec.WaterbodyID, rec.WaterbodyName,
			rec.LikesCount, rec.Text, rec.UserID, raw,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert catch %s", rec.CatchID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save catches")
}

func (s *SQLiteStore) ListCatches(ctx context.Context, runID string, limit, offset int) ([]model.Catch, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT catch_id, longitude, latitude, source, origin_cell, caught_at,
		        species_id, species_name, waterbody_id, waterbody_name, likes_count, body, user_id
		 FROM catches WHERE run_id = ?
		 ORDER BY origin_cell, catch_id
		 LIMIT ? OFFSET ?`,
		runID, limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list catches")
	}
	defer rows.Close()

	var records []model.Catch
	for rows.Next() {
		var rec model.Catch
		var source string
		var caughtAt, speciesID, speciesName, waterbodyID, waterbodyName, body, userID sql.NullString
		err := rows.Scan(&rec.CatchID, &rec.Longitude, &rec.Latitude, &source, &rec.OriginCell,
			&caughtAt, &speciesID, &speciesName, &waterbodyID, &waterbodyName, &rec.LikesCount, &body, &userID)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan catch")
		}
		rec.Source = model.Source(source)
		rec.CaughtAt = caughtAt.String
		rec.SpeciesID = speciesID.String
		rec.SpeciesName = speciesName.String
		rec.WaterbodyID = waterbodyID.String
		rec.WaterbodyName = waterbodyName.String
		rec.Text = body.String
		rec.UserID = userID.String
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list catches iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var failuresJSON sql.NullString

	err := row.Scan(&r.ID, &r.AOIPath, &r.CRS, &r.CellSize, &r.Status, &r.Catches, &r.Cells,
		&failuresJSON, &r.Dropped, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if failuresJSON.Valid && failuresJSON.String != "" && failuresJSON.String != "null" {
		if err := json.Unmarshal([]byte(failuresJSON.String), &r.Failures); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal failures")
		}
	}
	return &r, nil
}
