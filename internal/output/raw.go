package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/fishdata/catchgrid/internal/grid"
	"github.com/fishdata/catchgrid/internal/model"
)

// WriteRawPages dumps the raw API nodes for each queried cell into dir, one
// JSON file per cell. Filenames carry the cell index and its WGS84 bounding
// box so a dump can be tied back to the query that produced it.
func WriteRawPages(dir string, cells []grid.Cell, raw map[int][]json.RawMessage) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "output: create raw dir")
	}

	for _, cell := range cells {
		nodes, ok := raw[cell.Index]
		if !ok {
			continue
		}

		b := cell.BoundsWGS84
		name := fmt.Sprintf("cell_%04d_%g_%g_%g_%g.json",
			cell.Index, b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)

		data, err := json.MarshalIndent(nodes, "", "  ")
		if err != nil {
			return eris.Wrapf(err, "output: marshal raw nodes for cell %d", cell.Index)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return eris.Wrapf(err, "output: write raw dump for cell %d", cell.Index)
		}
	}

	return nil
}

// WriteRunSummary writes the run record as pretty-printed JSON.
func WriteRunSummary(path string, run *model.Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return eris.Wrap(err, "output: marshal run summary")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "output: write run summary")
	}
	return nil
}
