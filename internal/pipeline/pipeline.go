// Package pipeline orchestrates one upload end to end: gate the filename,
// transcode, detect the format, run the structural parser (or the
// inference-driven text path), normalize, and encode.
//
// Error taxonomy, checked at the boundary with errors.Is:
//   - ErrInputRejected: missing/empty filename or disallowed extension;
//     nothing was processed.
//   - ErrMalformedInput: a structural parser could not interpret the
//     content; no partial output exists.
//   - ErrEmptyResult: parsing succeeded but produced zero usable rows; no
//     file is written.
//
// Pattern-inference failure is deliberately NOT in the taxonomy: it
// degrades to raw-line fallback inside the text path and surfaces only as
// Result.Warning. Every other stage fails closed.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"lognorm/internal/encode"
	"lognorm/internal/format"
	"lognorm/internal/infer"
	"lognorm/internal/metrics"
	"lognorm/internal/normalize"
	"lognorm/internal/parser/csvrec"
	"lognorm/internal/parser/jsonrec"
	"lognorm/internal/parser/logrec"
	"lognorm/internal/parser/xmlrec"
	"lognorm/internal/record"
	"lognorm/internal/textenc"
)

var (
	ErrInputRejected  = errors.New("input rejected")
	ErrMalformedInput = errors.New("malformed input")
	ErrEmptyResult    = errors.New("no usable rows")
)

// OutputSuffix is appended to the upload's base name for the processed file.
const OutputSuffix = "_normalized.csv"

// Result is the successful outcome of Process.
type Result struct {
	Format     format.Format
	Columns    []string
	Preview    [][]string
	CSV        []byte
	RowCount   int
	Warning    string // non-empty when raw-line fallback ran
	OutputName string
}

// Pipeline holds the per-process collaborators. Construct once at startup;
// Process is safe for sequential reuse (the system model is one request at
// a time, so nothing here locks).
type Pipeline struct {
	Inferrer    infer.Inferrer // nil disables the text path
	FieldMap    normalize.FieldMap
	PreviewRows int
	Metrics     metrics.Backend
}

func New(inf infer.Inferrer, fm normalize.FieldMap, m metrics.Backend) *Pipeline {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Pipeline{Inferrer: inf, FieldMap: fm, PreviewRows: encode.PreviewRows, Metrics: m}
}

// Process runs the whole pipeline for one upload.
func (p *Pipeline) Process(ctx context.Context, filename string, data []byte) (*Result, error) {
	start := time.Now()
	res, err := p.process(ctx, filename, data)

	outcome := "ok"
	f := "unknown"
	switch {
	case err != nil:
		outcome = outcomeLabel(err)
	case res.Warning != "":
		f = string(res.Format)
		outcome = "fallback"
		p.Metrics.IncCounter("lognorm_fallback_total", 1, nil)
	default:
		f = string(res.Format)
	}
	p.Metrics.IncCounter("lognorm_uploads_total", 1, metrics.Labels{"format": f, "outcome": outcome})
	p.Metrics.ObserveHistogram("lognorm_process_duration_seconds", time.Since(start).Seconds(), nil)

	return res, err
}

func (p *Pipeline) process(ctx context.Context, filename string, data []byte) (*Result, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, fmt.Errorf("%w: no file selected", ErrInputRejected)
	}
	f, err := format.Detect(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputRejected, err)
	}

	text, err := textenc.DecodeUTF8(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	recs, f, warning, err := p.parse(ctx, f, text)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: could not parse the file, or the file is empty", ErrEmptyResult)
	}

	table := normalize.Normalize(recs, p.FieldMap)
	out, err := encode.CSV(table)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}

	return &Result{
		Format:     f,
		Columns:    table.Columns,
		Preview:    encode.Preview(table, p.PreviewRows),
		CSV:        out,
		RowCount:   table.Len(),
		Warning:    warning,
		OutputName: OutputName(filename),
	}, nil
}

// parse dispatches to the structural parser for f. The returned format may
// be more specific than the input (json -> jsonl).
func (p *Pipeline) parse(ctx context.Context, f format.Format, data []byte) ([]record.Raw, format.Format, string, error) {
	switch f {
	case format.JSON:
		recs, branch, err := jsonrec.Parse(ctx, bytes.NewReader(data))
		if err != nil {
			return nil, f, "", malformed(err)
		}
		return recs, branch, "", nil

	case format.XML:
		recs, err := xmlrec.Parse(ctx, bytes.NewReader(data))
		if err != nil {
			return nil, f, "", malformed(err)
		}
		return recs, f, "", nil

	case format.CSV:
		recs, err := csvrec.Parse(ctx, bytes.NewReader(data))
		if err != nil {
			return nil, f, "", malformed(err)
		}
		return recs, f, "", nil

	case format.Text:
		if p.Inferrer == nil {
			return nil, f, "", fmt.Errorf("%w: log/text processing is not configured (missing inference credential)", ErrInputRejected)
		}
		res, err := logrec.Parse(ctx, p.Inferrer, string(data))
		if err != nil {
			return nil, f, "", err
		}
		return res.Records, f, res.Warning, nil

	default:
		return nil, f, "", fmt.Errorf("%w: unsupported format %q", ErrInputRejected, f)
	}
}

func malformed(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrMalformedInput, err)
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrInputRejected):
		return "rejected"
	case errors.Is(err, ErrMalformedInput):
		return "malformed"
	case errors.Is(err, ErrEmptyResult):
		return "empty"
	default:
		return "error"
	}
}

// OutputName appends the fixed suffix to the upload's base name:
// "app.log" becomes "app_normalized.csv".
func OutputName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + OutputSuffix
}
