package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const maxColumnWidth = 40

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV writes a BOM-prefixed UTF-8 CSV so spreadsheet tools detect the
// encoding.
func WriteCSV(w io.Writer, t *Table) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := gocsv.DefaultCSVWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	record := make([]string, len(t.Headers))
	for _, cells := range t.Rows {
		for i, c := range cells {
			record[i] = c.CSV()
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the table to a single sheet with a styled header row and
// columns sized to their content.
func WriteXLSX(w io.Writer, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Sheet
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		widths[i] = utf8.RuneCountInString(h)
	}

	for r, cells := range t.Rows {
		for i, c := range cells {
			text, value, ok := xlsxValue(c)
			if !ok {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
			if n := utf8.RuneCountInString(text); n > widths[i] {
				widths[i] = n
			}
		}
	}

	if len(t.Headers) > 0 {
		style, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{t.HeaderColor}},
			Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		if err != nil {
			return err
		}
		last, err := excelize.CoordinatesToCellName(len(t.Headers), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
			return err
		}
	}

	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, float64(min(width+4, maxColumnWidth))); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// xlsxValue returns the displayed text and the typed value of a cell; ok is
// false for cells left blank.
func xlsxValue(c Cell) (string, interface{}, bool) {
	switch c.Value.Kind {
	case model.KindNumber:
		return strconv.FormatFloat(c.Value.Num, 'f', -1, 64), c.Value.Num, true
	case model.KindString:
		if c.Value.Str == "" {
			return "", nil, false
		}
		return c.Value.Str, c.Value.Str, true
	}
	return "", nil, false
}

// FileName is agrosense_<yyyymmdd_hhmm>_<kind>.<format>.
func FileName(now time.Time, kind Kind, format Format) string {
	return fmt.Sprintf("agrosense_%s_%s.%s", now.Format("20060102_1504"), kind, format)
}

// WriteFiles writes t in every format to dir and returns the created paths.
func WriteFiles(dir string, t *Table, formats []Format, now time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	var paths []string
	for _, format := range formats {
		path := filepath.Join(dir, FileName(now, t.Kind, format))
		if err := writeFile(path, t, format); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, t *Table, format Format) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	switch format {
	case FormatCSV:
		err = WriteCSV(file, t)
	case FormatXLSX:
		err = WriteXLSX(file, t)
	default:
		err = fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}
