// Package export writes result files in formats beyond the pipeline's CSV.
package export

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/carpool-pilot/prospect-cli/internal/model"
)

const sheetName = "Bedrifter"

// WriteXLSX writes entities to a single-sheet workbook with the same
// column set as the CSV output. Numeric fields become numeric cells so the
// sheet sorts and filters correctly when opened.
func WriteXLSX(path string, entities []model.Entity) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, name := range columnNames() {
		header.AddCell().SetString(name)
	}
	for i := range entities {
		addEntityRow(sheet, &entities[i])
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "export: create output dir %s", dir)
		}
	}
	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func columnNames() []string {
	names := []string{
		"organisasjonsnummer", "navn", "antall_ansatte", "adresse",
		"postnummer", "poststed", "naeringskode", "naeringskode_beskrivelse",
		"kilde", "latitude", "longitude", "hjemmeside", "epostadresse",
		"telefon", "mobil", "proff_url", "potensial_score", "salgsnotater",
	}
	for _, prefix := range []string{"kontakt_", "kontakt2_", "kontakt3_", "kontakt4_"} {
		for _, field := range []string{"navn", "rolle", "telefon", "epost"} {
			names = append(names, prefix+field)
		}
	}
	return append(names, "epost_generell")
}

func addEntityRow(sheet *xlsx.Sheet, e *model.Entity) {
	row := sheet.AddRow()
	row.AddCell().SetString(e.OrgNumber)
	row.AddCell().SetString(e.Name)
	row.AddCell().SetInt(e.Employees)
	row.AddCell().SetString(e.Address)
	row.AddCell().SetString(e.PostalCode)
	row.AddCell().SetString(e.City)
	row.AddCell().SetString(e.IndustryCode)
	row.AddCell().SetString(e.IndustryText)
	row.AddCell().SetString(string(e.Source))
	addFloatCell(row, e.Latitude)
	addFloatCell(row, e.Longitude)
	row.AddCell().SetString(e.Website)
	row.AddCell().SetString(e.Email)
	row.AddCell().SetString(e.Phone)
	row.AddCell().SetString(e.Mobile)
	row.AddCell().SetString(e.ProffURL)
	if e.PotentialScore != nil {
		row.AddCell().SetInt(*e.PotentialScore)
	} else {
		row.AddCell()
	}
	row.AddCell().SetString(e.SalesNotes)
	for _, c := range []model.Contact{e.Contact, e.Contact2, e.Contact3, e.Contact4} {
		row.AddCell().SetString(c.Name)
		row.AddCell().SetString(c.Role)
		row.AddCell().SetString(c.Phone)
		row.AddCell().SetString(c.Email)
	}
	row.AddCell().SetString(e.GeneralEmail)
}

func addFloatCell(row *xlsx.Row, v *float64) {
	if v == nil {
		row.AddCell()
		return
	}
	row.AddCell().SetFloat(*v)
}
