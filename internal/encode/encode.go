// Package encode serializes a normalized table for download and display.
package encode

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"lognorm/internal/record"
)

// PreviewRows caps how many rows the result page shows without a round
// trip through storage.
const PreviewRows = 100

// CSV writes the table as delimited text: one header row in canonical
// order, then every data row. Missing values are already empty strings.
func CSV(t *record.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}

// Preview returns up to n leading rows (copies, safe for the caller to
// hold after the table is discarded). n <= 0 uses PreviewRows.
func Preview(t *record.Table, n int) [][]string {
	if n <= 0 {
		n = PreviewRows
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := make([][]string, n)
	for i := 0; i < n; i++ {
		row := make([]string, len(t.Rows[i]))
		copy(row, t.Rows[i])
		out[i] = row
	}
	return out
}
