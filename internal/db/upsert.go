package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// UpsertConfig describes an INSERT ... ON CONFLICT statement.
type UpsertConfig struct {
	Table        string
	Columns      []string
	ConflictKeys []string
	UpdateCols   []string // columns to update on conflict; nil = all non-key columns
}

// Upsert inserts rows with a multi-row VALUES clause and resolves conflicts
// on the configured keys. With no updatable columns it degrades to
// DO NOTHING. Returns the number of rows affected.
func Upsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	update := cfg.UpdateCols
	if update == nil {
		for _, col := range cfg.Columns {
			if !slices.Contains(cfg.ConflictKeys, col) {
				update = append(update, col)
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(cfg.Table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(cfg.Columns, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(cfg.Columns))
	for i, row := range rows {
		if len(row) != len(cfg.Columns) {
			return 0, eris.Errorf("db: upsert: row %d has %d values, want %d", i, len(row), len(cfg.Columns))
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*len(cfg.Columns)+j+1)
		}
		sb.WriteString(")")
		args = append(args, row...)
	}

	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(strings.Join(cfg.ConflictKeys, ", "))
	sb.WriteString(")")
	if len(update) == 0 {
		sb.WriteString(" DO NOTHING")
	} else {
		sets := make([]string, len(update))
		for i, col := range update {
			sets[i] = col + " = EXCLUDED." + col
		}
		sb.WriteString(" DO UPDATE SET ")
		sb.WriteString(strings.Join(sets, ", "))
	}

	tag, err := pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert into %s", cfg.Table)
	}
	return tag.RowsAffected(), nil
}
