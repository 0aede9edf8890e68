package output

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/fishdata/catchgrid/internal/model"
)

// WriteCatchesXLSX writes the deduplicated catch records to an XLSX
// workbook with a single "catches" sheet.
func WriteCatchesXLSX(path string, records []model.Catch) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("catches")
	if err != nil {
		return eris.Wrap(err, "output: add xlsx sheet")
	}

	header := sheet.AddRow()
	for _, name := range catchHeader {
		header.AddCell().SetString(name)
	}

	for _, rec := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(rec.CatchID)
		row.AddCell().SetFloat(rec.Longitude)
		row.AddCell().SetFloat(rec.Latitude)
		row.AddCell().SetString(string(rec.Source))
		row.AddCell().SetInt(rec.OriginCell)
		row.AddCell().SetString(rec.CaughtAt)
		row.AddCell().SetString(rec.SpeciesID)
		row.AddCell().SetString(rec.SpeciesName)
		row.AddCell().SetString(rec.WaterbodyID)
		row.AddCell().SetString(rec.WaterbodyName)
		row.AddCell().SetInt(rec.LikesCount)
		row.AddCell().SetString(rec.Text)
		row.AddCell().SetString(rec.UserID)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "output: save xlsx")
	}
	return nil
}
