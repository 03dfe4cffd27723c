// Package export renders tabular reports as spreadsheet downloads.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"

	defaultSheet = "Sheet1"
	dateLayout   = "2006-01-02 15:04"
)

// ParseFormat defaults to xlsx when raw is blank.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "format must be xlsx or csv").
		WithDetails(map[string]string{"format": raw})
}

func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Filename stamps base with the export day, e.g. visits-2026-03-01.xlsx.
func (f Format) Filename(base string, at time.Time) string {
	return fmt.Sprintf("%s-%s.%s", base, at.UTC().Format("2006-01-02"), f)
}

type Column struct {
	Header string
	Width  float64
}

// Table is one sheet. Row values may be strings, numbers, bools, times,
// decimals, or nil pointers for empty cells.
type Table struct {
	Sheet   string
	Columns []Column
	Rows    [][]any
}

func Write(w io.Writer, format Format, t Table) error {
	if format == FormatCSV {
		return WriteCSV(w, t)
	}
	return WriteXLSX(w, t)
}

func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Header
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = text(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Sheet
	if sheet == "" {
		sheet = defaultSheet
	}
	if sheet != defaultSheet {
		index, err := f.NewSheet(sheet)
		if err != nil {
			return fmt.Errorf("create sheet %q: %w", sheet, err)
		}
		f.SetActiveSheet(index)
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("drop default sheet: %w", err)
		}
	}

	for c, col := range t.Columns {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col.Header); err != nil {
			return err
		}
		if col.Width > 0 {
			name, _ := excelize.ColumnNumberToName(c + 1)
			if err := f.SetColWidth(sheet, name, name, col.Width); err != nil {
				return err
			}
		}
	}
	for r, row := range t.Rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, cellValue(v)); err != nil {
				return fmt.Errorf("write %s: %w", cell, err)
			}
		}
	}

	if len(t.Columns) > 0 {
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return err
		}
		last, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
		if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

// cellValue keeps numbers numeric in the workbook. Decimals go out as
// float64 since spreadsheets have no exact decimal type.
func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		f, _ := x.Float64()
		return f
	case decimal.NullDecimal:
		if !x.Valid {
			return nil
		}
		f, _ := x.Decimal.Float64()
		return f
	case time.Time:
		return x.UTC().Format(dateLayout)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Format(dateLayout)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *int:
		if x == nil {
			return nil
		}
		return *x
	}
	return v
}

func text(v any) string {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.String()
	case decimal.NullDecimal:
		if x.Valid {
			return x.Decimal.String()
		}
		return ""
	}
	v = cellValue(v)
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
