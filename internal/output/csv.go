package output

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/fishdata/catchgrid/internal/model"
)

var catchHeader = []string{
	"catch_id", "longitude", "latitude", "source", "origin_cell",
	"caught_at", "species_id", "species_name", "waterbody_id",
	"waterbody_name", "likes_count", "text", "user_id",
}

// WriteCatchesCSV writes the deduplicated catch records to a CSV file.
func WriteCatchesCSV(path string, records []model.Catch) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "output: create csv")
	}

	w := csv.NewWriter(f)
	if err := w.Write(catchHeader); err != nil {
		f.Close()
		return eris.Wrap(err, "output: write csv header")
	}
	for _, rec := range records {
		if err := w.Write(catchRow(rec)); err != nil {
			f.Close()
			return eris.Wrap(err, "output: write csv row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return eris.Wrap(err, "output: flush csv")
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "output: close csv")
	}
	return nil
}

// WriteFailuresCSV writes per-cell query failures to a CSV file. A run with
// no failures still gets a header-only file so downstream tooling can rely
// on its presence.
func WriteFailuresCSV(path string, failures []model.CellFailure) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "output: create failures csv")
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"cell", "error"}); err != nil {
		f.Close()
		return eris.Wrap(err, "output: write failures header")
	}
	for _, fail := range failures {
		if err := w.Write([]string{strconv.Itoa(fail.Cell), fail.Err}); err != nil {
			f.Close()
			return eris.Wrap(err, "output: write failures row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return eris.Wrap(err, "output: flush failures csv")
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "output: close failures csv")
	}
	return nil
}

func catchRow(rec model.Catch) []string {
	return []string{
		rec.CatchID,
		strconv.FormatFloat(rec.Longitude, 'f', -1, 64),
		strconv.FormatFloat(rec.Latitude, 'f', -1, 64),
		string(rec.Source),
		strconv.Itoa(rec.OriginCell),
		rec.CaughtAt,
		rec.SpeciesID,
		rec.SpeciesName,
		rec.WaterbodyID,
		rec.WaterbodyName,
		strconv.Itoa(rec.LikesCount),
		rec.Text,
		rec.UserID,
	}
}
