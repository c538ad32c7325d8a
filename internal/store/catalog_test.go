package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "catalog.db")
	c, err := OpenCatalog(context.Background(), dsn)
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCatalogRecordAndLookup(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)
	ctx := context.Background()

	e := Entry{
		Name:     "app_normalized.csv",
		Original: "app.log",
		Format:   "log",
		Rows:     42,
		Warning:  "pattern inference failed",
	}
	if err := c.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := c.Lookup(ctx, "app_normalized.csv")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got == nil {
		t.Fatal("Lookup returned nil for a recorded artifact")
	}
	if got.Original != "app.log" || got.Rows != 42 || got.Warning != e.Warning {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("CreatedAt should be filled in on insert")
	}
}

func TestCatalogLookupUnknown(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)
	got, err := c.Lookup(context.Background(), "never-made.csv")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown artifact, got %+v", got)
	}
}

func TestCatalogUpsert(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)
	ctx := context.Background()

	first := Entry{Name: "x_normalized.csv", Original: "x.json", Format: "json", Rows: 1}
	if err := c.Record(ctx, first); err != nil {
		t.Fatalf("Record: %v", err)
	}
	second := first
	second.Rows = 9
	second.Format = "jsonl"
	if err := c.Record(ctx, second); err != nil {
		t.Fatalf("Record (upsert): %v", err)
	}

	got, err := c.Lookup(ctx, "x_normalized.csv")
	if err != nil || got == nil {
		t.Fatalf("Lookup: %+v, %v", got, err)
	}
	if got.Rows != 9 || got.Format != "jsonl" {
		t.Fatalf("upsert did not replace: %+v", got)
	}

	recent, err := c.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("upsert should leave one row, got %d", len(recent))
	}
}

func TestCatalogRecentOrder(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, name := range []string{"old.csv", "mid.csv", "new.csv"} {
		e := Entry{Name: name, Original: name, Format: "csv", Rows: i, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := c.Record(ctx, e); err != nil {
			t.Fatalf("Record %s: %v", name, err)
		}
	}

	recent, err := c.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Name != "new.csv" || recent[1].Name != "mid.csv" {
		t.Fatalf("order/limit wrong: %+v", recent)
	}
}
