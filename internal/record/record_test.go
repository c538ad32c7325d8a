package record

import (
	"reflect"
	"testing"
)

func TestCanonicalSchemaOrderAndIsolation(t *testing.T) {
	t.Parallel()

	want := []string{
		"timestamp", "log_level", "message", "service_name",
		"host_name", "trace_id", "error_details", "metadata",
	}
	got := CanonicalSchema()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("CanonicalSchema() = %v, want %v", got, want)
	}

	got[0] = "mutated"
	if CanonicalSchema()[0] != "timestamp" {
		t.Fatal("CanonicalSchema returned shared backing storage")
	}
}

func TestIsCanonical(t *testing.T) {
	t.Parallel()

	for _, name := range CanonicalSchema() {
		if !IsCanonical(name) {
			t.Fatalf("IsCanonical(%q) = false", name)
		}
	}
	for _, name := range []string{"ts", "Timestamp", "TRACE_ID", "", "meta"} {
		if IsCanonical(name) {
			t.Fatalf("IsCanonical(%q) = true", name)
		}
	}
}

func TestTableRecordsSkipsEmpty(t *testing.T) {
	t.Parallel()

	tbl := &Table{
		Columns: []string{"timestamp", "message"},
		Rows:    [][]string{{"2024-01-01T00:00:00Z", ""}, {"", "hello"}},
	}
	recs := tbl.Records()
	if len(recs) != 2 {
		t.Fatalf("Records() len = %d, want 2", len(recs))
	}
	if _, ok := recs[0]["message"]; ok {
		t.Fatal("empty cell must not become a field")
	}
	if recs[1]["message"] != "hello" {
		t.Fatalf("recs[1][message] = %q", recs[1]["message"])
	}
}

func TestRawClone(t *testing.T) {
	t.Parallel()

	r := Raw{"a": "1"}
	c := r.Clone()
	c["a"] = "2"
	if r["a"] != "1" {
		t.Fatal("Clone shares storage with the original")
	}
}
