package export

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"mspro-labs/cfe-tariffs/internal/models"
	"mspro-labs/cfe-tariffs/internal/store"
)

var logger = log.WithField("component", "export")

// WorkbookFile is the English workbook's name inside the output directory.
const WorkbookFile = "english_tariff_latest.xlsx"

const sheetName = "Tariffs"

// Columns mirror the JSON keys of a tariff record.
var Columns = []string{
	"id", "region", "municipality", "division", "year", "month", "month_name",
	"extracted_at", "fare", "post", "units", "tariff_value",
}

// FromOutputDir builds the workbook from the translated collection in outDir
// and returns its path with the number of data rows.
func FromOutputDir(outDir string) (string, int, error) {
	dir, err := store.NewJSONDir(outDir)
	if err != nil {
		return "", 0, err
	}
	var records []models.TariffRecord
	if err := dir.Read(store.EnglishFile, &records); err != nil {
		return "", 0, err
	}
	path := filepath.Join(outDir, WorkbookFile)
	if err := Write(path, records); err != nil {
		return "", 0, err
	}
	return path, len(records), nil
}

// Write sorts a copy of records and saves them as a single-sheet workbook.
// An empty input still produces the header row.
func Write(path string, records []models.TariffRecord) error {
	sorted := slices.Clone(records)
	Sort(sorted)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := styleHeader(f); err != nil {
		return err
	}

	for i, r := range sorted {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			r.ID, r.Region, r.Municipality, r.Division, r.Year, r.Month, r.MonthName,
			r.ExtractedAt, r.Fare, r.Post, r.Units, r.TariffValue,
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	// Save next to the target and rename so a download never sees a half-written file.
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp workbook: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	logger.WithFields(log.Fields{"file": path, "rows": len(sorted)}).Info("Workbook written")
	return nil
}

// styleHeader bolds the header row and freezes it above the data.
func styleHeader(f *excelize.File) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(Columns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}
	return nil
}

// Sort orders records by year, month, region, municipality, division and
// fare, keeping the input order among equal keys.
func Sort(records []models.TariffRecord) {
	slices.SortStableFunc(records, func(a, b models.TariffRecord) int {
		return cmp.Or(
			cmp.Compare(a.Year, b.Year),
			cmp.Compare(a.Month, b.Month),
			cmp.Compare(a.Region, b.Region),
			cmp.Compare(a.Municipality, b.Municipality),
			cmp.Compare(a.Division, b.Division),
			cmp.Compare(a.Fare, b.Fare),
		)
	})
}
