package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	sheetName   = "Patients"
)

var header = []any{"Patient ID", "Patient Name", "Classification", "Confidence", "Notes", "Recorded At"}

// Exporter writes patient records as a single-sheet workbook.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ContentType() string {
	return ContentType
}

func (e *Exporter) Write(w io.Writer, records []domain.PatientRecord) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		row := []any{
			rec.PatientID,
			rec.PatientName,
			string(rec.Classification),
			fmt.Sprintf("%.2f", rec.Confidence),
			rec.Notes,
			rec.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %s: %w", rec.PatientID, err)
		}
	}

	if err := f.SetColWidth(sheetName, "A", "F", 18); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
