// Package record defines the data shapes shared by every stage of the
// normalization pipeline.
//
// Two shapes matter:
//   - Raw: an unnormalized record as produced by a structural parser or the
//     line extractor. Its field set is arbitrary and may differ between
//     records of the same file.
//   - Table: the normalized result. Every row has exactly the canonical
//     column set, in canonical order.
//
// The canonical schema is fixed for the lifetime of the process. Accessors
// return copies so no caller can mutate the package-level state.
package record

// Raw is one unnormalized record: field name to field value.
// An absent key means an absent (null) field; parsers never store
// a key for a field the source did not carry.
type Raw map[string]string

// Clone returns a shallow copy of r. A nil Raw clones to an empty one.
func (r Raw) Clone() Raw {
	out := make(Raw, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Canonical column names, in output order.
const (
	ColTimestamp    = "timestamp"
	ColLogLevel     = "log_level"
	ColMessage      = "message"
	ColServiceName  = "service_name"
	ColHostName     = "host_name"
	ColTraceID      = "trace_id"
	ColErrorDetails = "error_details"
	ColMetadata     = "metadata"
)

var canonical = []string{
	ColTimestamp,
	ColLogLevel,
	ColMessage,
	ColServiceName,
	ColHostName,
	ColTraceID,
	ColErrorDetails,
	ColMetadata,
}

var canonicalSet = func() map[string]bool {
	s := make(map[string]bool, len(canonical))
	for _, c := range canonical {
		s[c] = true
	}
	return s
}()

// CanonicalSchema returns the fixed, ordered list of output column names.
// The returned slice is a copy.
func CanonicalSchema() []string {
	out := make([]string, len(canonical))
	copy(out, canonical)
	return out
}

// IsCanonical reports whether name is one of the canonical column names.
// Matching is exact; the normalizer does not guess near-misses.
func IsCanonical(name string) bool {
	return canonicalSet[name]
}

// Table is an ordered sequence of normalized rows. Columns is always the
// canonical schema; Rows[i] is positionally aligned to Columns, with ""
// standing in for an absent value.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Records converts the table back to Raw records, one per row, skipping
// empty values. It exists so the normalizer's idempotence over its own
// output is checkable; nothing in the pipeline round-trips through it.
func (t *Table) Records() []Raw {
	out := make([]Raw, 0, len(t.Rows))
	for _, row := range t.Rows {
		r := make(Raw, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(row) && row[i] != "" {
				r[col] = row[i]
			}
		}
		out = append(out, r)
	}
	return out
}
