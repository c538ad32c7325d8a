// Package csvrec parses CSV uploads into raw records.
//
// The first row is the header and its cells become field names verbatim
// (after trimming edge whitespace and a UTF-8 BOM on the first cell).
//
// Ragged rows have one documented policy, applied consistently:
//   - a row shorter than the header leaves the trailing fields absent,
//   - a row longer than the header keeps only the header-named cells.
//
// Structural errors from the reader itself (bad quoting) fail the parse.
package csvrec

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"lognorm/internal/record"
)

// Parse reads all of r and returns one record per data row.
func Parse(ctx context.Context, r io.Reader) ([]record.Raw, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1 // ragged rows handled by policy below

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		columns[i] = h
	}

	var out []record.Raw
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rec := make(record.Raw, len(columns))
		for i, col := range columns {
			if col == "" || i >= len(row) {
				continue
			}
			// Data cells stay verbatim; only the header is trimmed. An
			// empty cell is an absent field.
			if row[i] == "" {
				continue
			}
			rec[col] = row[i]
		}
		out = append(out, rec)
	}
}
