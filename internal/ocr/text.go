package ocr

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// PlainText reads text files as-is.
type PlainText struct{}

// ExtractText implements Extractor.
func (PlainText) ExtractText(_ context.Context, path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read %s", path)
	}
	return string(b), nil
}

// XLSXText renders spreadsheets as "Label: value" lines. A sheet with two
// columns is read as label/value pairs; wider sheets use the first row as
// headers and emit one block per data row.
type XLSXText struct{}

// ExtractText implements Extractor.
func (XLSXText) ExtractText(ctx context.Context, path string) (string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: open xlsx %s", path)
	}

	var sb strings.Builder
	for _, sheet := range f.Sheets {
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "ocr: xlsx cancelled")
		}
		rows := sheetRows(sheet)
		if len(rows) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		if maxWidth(rows) <= 2 {
			writePairs(&sb, rows)
		} else {
			writeRecords(&sb, rows)
		}
	}
	return sb.String(), nil
}

func sheetRows(sheet *xlsx.Sheet) [][]string {
	var rows [][]string
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		empty := true
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
			if cells[j] != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, cells)
		}
	}
	return rows
}

func maxWidth(rows [][]string) int {
	w := 0
	for _, r := range rows {
		n := len(r)
		for n > 0 && r[n-1] == "" {
			n--
		}
		if n > w {
			w = n
		}
	}
	return w
}

func writePairs(sb *strings.Builder, rows [][]string) {
	for _, r := range rows {
		if len(r) < 2 || r[0] == "" || r[1] == "" {
			continue
		}
		sb.WriteString(strings.TrimSuffix(r[0], ":"))
		sb.WriteString(": ")
		sb.WriteString(r[1])
		sb.WriteString("\n")
	}
}

func writeRecords(sb *strings.Builder, rows [][]string) {
	header := rows[0]
	for i, r := range rows[1:] {
		if i > 0 {
			sb.WriteString("\n")
		}
		for j, v := range r {
			if j >= len(header) || header[j] == "" || v == "" {
				continue
			}
			sb.WriteString(header[j])
			sb.WriteString(": ")
			sb.WriteString(v)
			sb.WriteString("\n")
		}
	}
}
