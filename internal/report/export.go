package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"parent-wellness/internal/models"
)

// SheetName name of the single worksheet in exported workbooks
const SheetName = "Weekly Reports"

// Headers column order of the export
var Headers = []string{
	"Report ID",
	"Period Start",
	"Period End",
	"Metric",
	"Count",
	"Average",
	"Min",
	"Max",
	"Last Value",
}

var columnWidths = []float64{38, 20, 20, 16, 10, 12, 10, 10, 12}

type metricRow struct {
	name    string
	summary models.MetricSummary
}

func rowsOf(r models.WeeklyReport) []metricRow {
	return []metricRow{
		{"heart_rate", r.HeartRate},
		{"systolic", r.Systolic},
		{"diastolic", r.Diastolic},
		{"blood_sugar", r.BloodSugar},
		{"steps", r.Steps},
	}
}

// ExportXLSX renders reports as an xlsx workbook, one row per report metric.
// Times are written in loc (UTC when nil).
func ExportXLSX(reports []models.WeeklyReport, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(SheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	row := 2
	for _, r := range reports {
		start := time.UnixMilli(r.PeriodStart).In(loc).Format("2006-01-02 15:04")
		end := time.UnixMilli(r.PeriodEnd).In(loc).Format("2006-01-02 15:04")
		for _, m := range rowsOf(r) {
			values := []interface{}{
				r.ID,
				start,
				end,
				m.name,
				m.summary.Count,
				m.summary.Avg,
				m.summary.Min,
				m.summary.Max,
				m.summary.LastValue,
			}
			for col, value := range values {
				if err := setCellValue(f, SheetName, col+1, row, value); err != nil {
					f.Close()
					return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col+1, err)
				}
			}
			row++
		}
	}

	// freeze header row
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	// file must stay open while writing
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func setCellValue(f *excelize.File, sheet string, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}
