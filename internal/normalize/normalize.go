// Package normalize imposes the canonical schema on whatever field sets the
// parsers produced. It is the single place in the pipeline where a fixed
// record shape exists.
//
// Algorithm, per the adaptive-schema design:
//  1. take the union of field names across all records,
//  2. partition names into recognized (exact canonical match) and
//     unrecognized,
//  3. fold each record's unrecognized fields into one compact JSON object
//     stored under the canonical "metadata" column,
//  4. reorder every record to canonical column order, empty for missing.
//
// Tie-break for a source field literally named "metadata": the name is
// canonical, so when a record carries no unrecognized fields the value
// passes through untouched; that is what makes Normalize idempotent on
// its own output. When unrecognized fields are present they take
// precedence: the source "metadata" value is folded into the serialized
// mapping under the key "metadata" like any other leftover, never kept as
// the column value. The rule depends only on the record's field set, not
// on field order.
package normalize

import (
	"encoding/json"
	"sort"

	"lognorm/internal/record"
)

// FieldMap renames source fields before recognition, e.g. {"ts":
// "timestamp", "lvl": "log_level"}. Renames apply per record; a mapped name
// that collides with an existing field keeps the existing field's value.
type FieldMap map[string]string

// Normalize converts raw records to a canonical table. fm may be nil.
func Normalize(recs []record.Raw, fm FieldMap) *record.Table {
	columns := record.CanonicalSchema()
	t := &record.Table{
		Columns: columns,
		Rows:    make([][]string, 0, len(recs)),
	}

	for _, rec := range recs {
		if len(fm) > 0 {
			rec = applyFieldMap(rec, fm)
		}

		extras := map[string]string{}
		for name, v := range rec {
			if !record.IsCanonical(name) {
				extras[name] = v
			}
		}
		if len(extras) > 0 {
			// Explicit unrecognized fields take precedence over a source
			// field named "metadata": fold that one too.
			if v, ok := rec[record.ColMetadata]; ok {
				extras[record.ColMetadata] = v
			}
		}

		row := make([]string, len(columns))
		for i, col := range columns {
			switch {
			case col == record.ColMetadata && len(extras) > 0:
				row[i] = encodeExtras(extras)
			default:
				row[i] = rec[col]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// applyFieldMap renames fields in two passes so that a field the source
// carried directly always wins over a renamed one, regardless of map
// iteration order.
func applyFieldMap(rec record.Raw, fm FieldMap) record.Raw {
	out := make(record.Raw, len(rec))
	for name, v := range rec {
		if _, renamed := fm[name]; !renamed {
			out[name] = v
		}
	}
	for name, v := range rec {
		mapped, renamed := fm[name]
		if !renamed {
			continue
		}
		if _, exists := out[mapped]; exists {
			continue
		}
		out[mapped] = v
	}
	return out
}

// encodeExtras serializes leftover fields as a compact JSON object with
// sorted keys, so identical inputs always produce identical metadata text.
func encodeExtras(extras map[string]string) string {
	keys := make([]string, 0, len(extras))
	for k := range extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := make([]byte, 0, 16*len(extras))
	buf = append(buf, '{')
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(extras[k])
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return string(buf)
}
