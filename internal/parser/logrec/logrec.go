// Package logrec handles the unstructured delimited-text path: it takes a
// bounded leading sample for pattern inference, applies the inferred
// pattern to the whole file, and degrades to raw-line mode when structured
// extraction produces nothing.
//
// The fallback guarantee matters more than any single extraction: for a
// non-empty input this package always returns a non-empty record set,
// trading structure for data preservation.
package logrec

import (
	"context"
	"strings"

	"lognorm/internal/infer"
	"lognorm/internal/record"
)

// SampleLines is how much of the file the inference service sees.
const SampleLines = 10

// Sample returns up to n leading non-blank lines of text.
func Sample(text string, n int) []string {
	if n <= 0 {
		n = SampleLines
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}

// Result is what the text path hands to the normalizer.
type Result struct {
	Records []record.Raw
	// Fallback is set when raw-line mode ran; Warning says why, in words
	// fit for the result page.
	Fallback bool
	Warning  string
}

// Parse runs the full delimited-text path: sample, infer, extract, and
// fall back when inference fails or the pattern matches nothing.
func Parse(ctx context.Context, inf infer.Inferrer, text string) (*Result, error) {
	sample := Sample(text, SampleLines)
	if len(sample) == 0 {
		return &Result{}, nil
	}

	pat, err := inf.Infer(ctx, sample)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Result{
			Records:  rawLines(text),
			Fallback: true,
			Warning:  "pattern inference failed (" + err.Error() + "); every line was kept as a raw message",
		}, nil
	}

	recs := Extract(ctx, pat, text)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return &Result{
			Records:  rawLines(text),
			Fallback: true,
			Warning:  "the inferred pattern matched no lines; every line was kept as a raw message",
		}, nil
	}
	return &Result{Records: recs}, nil
}

// Extract applies pat to every line of text. Lines that do not match are
// skipped silently; they are neither fatal nor fabricated.
func Extract(ctx context.Context, pat *infer.Pattern, text string) []record.Raw {
	var out []record.Raw
	for _, line := range strings.Split(text, "\n") {
		if ctx.Err() != nil {
			return out
		}
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if rec := pat.Match(line); rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// rawLines is the degenerate one-field schema: one record per non-blank
// line, the whole line under "message".
func rawLines(text string) []record.Raw {
	var out []record.Raw
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimRight(line, "\r"))
		if line == "" {
			continue
		}
		out = append(out, record.Raw{record.ColMessage: line})
	}
	return out
}
