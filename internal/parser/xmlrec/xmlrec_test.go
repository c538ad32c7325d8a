package xmlrec

import (
	"context"
	"strings"
	"testing"
)

func TestParseRecords(t *testing.T) {
	t.Parallel()

	in := `<?xml version="1.0"?>
<events>
  <event>
    <timestamp>2024-01-01T00:00:00Z</timestamp>
    <level>ERROR</level>
    <msg>disk full</msg>
  </event>
  <event>
    <level>INFO</level>
  </event>
</events>`

	recs, err := Parse(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if recs[0]["timestamp"] != "2024-01-01T00:00:00Z" || recs[0]["msg"] != "disk full" {
		t.Fatalf("first record = %v", recs[0])
	}
	// Heterogeneous field sets are allowed: the second record only has level.
	if len(recs[1]) != 1 || recs[1]["level"] != "INFO" {
		t.Fatalf("second record = %v", recs[1])
	}
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"<root><a></root>", "not xml at all", ""} {
		if _, err := Parse(context.Background(), strings.NewReader(in)); err == nil {
			t.Fatalf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestParseEmptyRoot(t *testing.T) {
	t.Parallel()

	recs, err := Parse(context.Background(), strings.NewReader("<root></root>"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("len = %d, want 0", len(recs))
	}
}
