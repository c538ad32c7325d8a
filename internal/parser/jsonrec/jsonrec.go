// Package jsonrec parses JSON uploads into raw records.
//
// Two layouts are accepted, tried in this order:
//  1. a single JSON array of objects,
//  2. newline-delimited JSON (one object per line, blank lines skipped).
//
// The caller learns which branch ran from the returned format tag, so the
// result page can say "jsonl" when that is what the file actually was.
//
// Value flattening:
//   - nested objects flatten to dotted paths ("a.b.c"),
//   - arrays of scalars join into one value with ",",
//   - arrays containing objects are kept as their compact JSON encoding,
//   - JSON null becomes an absent field, not the string "null".
package jsonrec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"lognorm/internal/format"
	"lognorm/internal/record"
)

// arrayJoinSeparator flattens []string-ish values into a scalar.
const arrayJoinSeparator = ","

// Parse reads all of r and returns its records plus the format branch that
// produced them (format.JSON or format.JSONL).
func Parse(ctx context.Context, r io.Reader) ([]record.Raw, format.Format, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("read input: %w", err)
	}

	recs, arrErr := parseArray(ctx, data)
	if arrErr == nil {
		return recs, format.JSON, nil
	}
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}

	recs, lineErr := parseLines(ctx, data)
	if lineErr == nil {
		return recs, format.JSONL, nil
	}
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}

	return nil, "", fmt.Errorf("not a JSON array (%v) and not line-delimited JSON (%v)", arrErr, lineErr)
}

// parseArray decodes data as a single array of objects.
func parseArray(ctx context.Context, data []byte) ([]record.Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber() // keep numbers verbatim; no float64 round-trip loss

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read first token: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("root is %v, want array", tok)
	}

	var out []record.Raw
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("array element %d: %w", len(out)+1, err)
		}
		out = append(out, flattenObject(obj))
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read array end: %w", err)
	}
	return out, nil
}

// parseLines decodes data as one JSON object per non-blank line.
func parseLines(ctx context.Context, data []byte) ([]record.Raw, error) {
	var out []record.Raw
	line := 0
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line++
		var chunk []byte
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			chunk, data = data[:i], data[i+1:]
		} else {
			chunk, data = data, nil
		}
		chunk = bytes.TrimSpace(chunk)
		if len(chunk) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(chunk))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, flattenObject(obj))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no JSON objects found")
	}
	return out, nil
}

// flattenObject converts one decoded object into a Raw record.
func flattenObject(obj map[string]any) record.Raw {
	rec := make(record.Raw, len(obj))
	flattenInto(rec, "", obj)
	return rec
}

func flattenInto(rec record.Raw, prefix string, obj map[string]any) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case nil:
			// absent field
		case map[string]any:
			flattenInto(rec, key, t)
		case []any:
			rec[key] = flattenArray(t)
		default:
			rec[key] = scalarString(t)
		}
	}
}

// flattenArray joins scalar elements; anything containing objects or nested
// arrays is preserved as compact JSON so no data is dropped.
func flattenArray(arr []any) string {
	parts := make([]string, 0, len(arr))
	for _, el := range arr {
		switch el.(type) {
		case map[string]any, []any:
			b, err := json.Marshal(arr)
			if err != nil {
				return fmt.Sprint(arr)
			}
			return string(b)
		case nil:
			parts = append(parts, "")
		default:
			parts = append(parts, scalarString(el))
		}
	}
	return strings.Join(parts, arrayJoinSeparator)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
