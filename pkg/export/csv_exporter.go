package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter renders datasets as spreadsheet friendly CSV.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render writes the header record, one record per row with blanks for missing
// cells and, when set, the footer as a trailing single cell record.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	var buf bytes.Buffer
	// BOM so spreadsheet tools read payer names as UTF-8.
	buf.WriteString("\xEF\xBB\xBF")
	w := csv.NewWriter(&buf)

	records := make([][]string, 0, len(data.Rows)+2)
	records = append(records, data.Headers)
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = neutralizeFormula(row[header])
		}
		records = append(records, record)
	}
	if data.Footer != "" {
		records = append(records, []string{neutralizeFormula(data.Footer)})
	}
	// WriteAll flushes and reports the first write error.
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// neutralizeFormula keeps user supplied text from being evaluated as a
// spreadsheet formula. Negative numbers pass through untouched.
func neutralizeFormula(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '+', '@', '\t', '\r':
		return "'" + cell
	case '-':
		if len(cell) > 1 && (cell[1] >= '0' && cell[1] <= '9' || cell[1] == '.') {
			return cell
		}
		return "'" + cell
	}
	return cell
}
