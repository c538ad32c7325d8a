package infer

import (
	"fmt"
	"regexp"
	"strings"

	"lognorm/internal/record"
)

// Pattern is a validated named-capture expression. Invariant: a Pattern
// either compiled whole (anchored start to end, at least one named group)
// or Compile returned an error; it is never applied partially.
type Pattern struct {
	Text string

	re    *regexp.Regexp
	names []string
}

// Compile validates raw pattern text and returns a usable Pattern.
//
// The service is instructed to answer with the bare pattern, but models
// wrap answers in code fences often enough that stripping them here is
// cheaper than re-asking. After unfencing, the text must be non-empty,
// must compile, and must declare at least one named group. Missing ^/$
// anchors are added rather than rejected.
func Compile(raw string) (*Pattern, error) {
	text := Unfence(raw)
	if text == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	if !strings.HasPrefix(text, "^") || !strings.HasSuffix(text, "$") {
		// The whole expression is grouped before anchoring so a top-level
		// alternation cannot escape the anchors and match mid-line.
		text = "^(?:" + text + ")$"
	}

	re, err := regexp.Compile(text)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}

	var names []string
	for _, n := range re.SubexpNames() {
		if n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("pattern has no named capture groups")
	}

	return &Pattern{Text: text, re: re, names: names}, nil
}

// Names returns the capture group names in declaration order.
func (p *Pattern) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Match applies the pattern to one line. It returns nil when the line does
// not match. Groups that matched the empty string become absent fields.
func (p *Pattern) Match(line string) record.Raw {
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	rec := make(record.Raw, len(p.names))
	for i, n := range p.re.SubexpNames() {
		if n == "" || i >= len(m) || m[i] == "" {
			continue
		}
		rec[n] = m[i]
	}
	return rec
}

// Unfence strips a surrounding Markdown code fence (with or without a
// language tag) and trims whitespace. Text without a fence passes through.
func Unfence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop a language tag like "regex" on the opening fence line
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if len(first) <= 16 && !strings.ContainsAny(first, " \t") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
