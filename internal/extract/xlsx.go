package extract

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

type sheetRows struct {
	name string
	rows [][]string
}

// xlsxText renders every sheet as "[Sheet: name]" followed by its rows as CSV.
func xlsxText(data []byte) (string, error) {
	r, _, err := readerAt(data)
	if err != nil {
		return "", err
	}
	book, err := excelize.OpenReader(r)
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := make([]sheetRows, 0)
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		sheets = append(sheets, sheetRows{name: sheet, rows: rows})
	}
	return renderSheets(sheets)
}

// renderSheets joins sheets with a blank line. Sheets without a single
// non-blank cell are left out.
func renderSheets(sheets []sheetRows) (string, error) {
	parts := make([]string, 0, len(sheets))
	for _, sheet := range sheets {
		if !hasCells(sheet.rows) {
			continue
		}
		var b strings.Builder
		w := csv.NewWriter(&b)
		if err := w.WriteAll(sheet.rows); err != nil {
			return "", fmt.Errorf("render sheet %s: %w", sheet.name, err)
		}
		parts = append(parts, "[Sheet: "+sheet.name+"]\n"+strings.TrimRight(b.String(), "\n"))
	}
	return strings.Join(parts, "\n\n"), nil
}

func hasCells(rows [][]string) bool {
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				return true
			}
		}
	}
	return false
}
