package render

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"

	"daily-movers/internal/models"
)

// WriteReportCSV writes the flattened report rows as report.csv. One line per
// ticker, with the same columns as the archive's flat representation.
func WriteReportCSV(path string, rows []models.ReportRow) error {
	records := make([]*models.FlatRecord, 0, len(rows))
	for i := range rows {
		flat := rows[i].ToFlatRecord()
		records = append(records, &flat)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report csv: %w", err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&records, f); err != nil {
		return fmt.Errorf("writing report csv: %w", err)
	}
	return nil
}
