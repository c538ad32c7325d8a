package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"lognorm/internal/config"
	"lognorm/internal/pipeline"
	"lognorm/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	root := t.TempDir()
	files, err := store.NewFiles(filepath.Join(root, "uploads"), filepath.Join(root, "processed"))
	if err != nil {
		t.Fatalf("NewFiles: %v", err)
	}
	catalog, err := store.OpenCatalog(context.Background(), filepath.Join(root, "catalog.db"))
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	t.Cleanup(catalog.Close)

	cfg := config.Default()
	pipe := pipeline.New(nil, map[string]string{"ts": "timestamp", "msg": "message"}, nil)
	return New(cfg, pipe, files, catalog, nil)
}

func uploadRequest(t *testing.T, target, filename, body string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte(body)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestIndex(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Log normalizer") {
		t.Fatalf("landing page missing heading:\n%s", rec.Body.String())
	}
}

func TestUploadAndDownload(t *testing.T) {
	s := newTestServer(t)

	req := uploadRequest(t, "/upload", "events.json",
		`[{"ts":"2024-01-01T00:00:00Z","msg":"disk full","extra":"x"}]`)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d:\n%s", rec.Code, rec.Body.String())
	}
	page := rec.Body.String()
	for _, want := range []string{"events_normalized.csv", "disk full", "timestamp"} {
		if !strings.Contains(page, want) {
			t.Fatalf("results page missing %q:\n%s", want, page)
		}
	}

	// The processed artifact is now cataloged and downloadable.
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/events_normalized.csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "events_normalized.csv") {
		t.Fatalf("Content-Disposition = %q", got)
	}
	if !strings.HasPrefix(rec.Body.String(), "timestamp,log_level,message,") {
		t.Fatalf("downloaded CSV header wrong:\n%s", rec.Body.String())
	}
}

func TestUploadRejections(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		filename string
		body     string
		status   int
	}{
		{"disallowed extension", "tool.exe", "MZ", http.StatusBadRequest},
		{"malformed json", "bad.json", "{truncated", http.StatusUnprocessableEntity},
		{"empty csv", "empty.csv", "a,b\n", http.StatusUnprocessableEntity},
		{"text without inferrer", "app.log", "line one\n", http.StatusBadRequest},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, uploadRequest(t, "/upload", tt.filename, tt.body))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d:\n%s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestUploadNoFilePart(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAPINormalize(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, uploadRequest(t, "/api/normalize", "rows.csv", "msg,host_name\nhello,h1\n"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d:\n%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Format   string     `json:"format"`
		Columns  []string   `json:"columns"`
		Preview  [][]string `json:"preview"`
		RowCount int        `json:"row_count"`
		Output   string     `json:"output"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Format != "csv" || body.RowCount != 1 || body.Output != "rows_normalized.csv" {
		t.Fatalf("response = %+v", body)
	}
	if len(body.Preview) != 1 {
		t.Fatalf("preview rows = %d", len(body.Preview))
	}
}

func TestAPINormalizeError(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, uploadRequest(t, "/api/normalize", "bad.xml", "<open"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error"] == "" {
		t.Fatal("expected an error message")
	}
}

func TestDownloadUnknown(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/not-there.csv", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUploadTooLarge(t *testing.T) {
	root := t.TempDir()
	files, err := store.NewFiles(filepath.Join(root, "u"), filepath.Join(root, "p"))
	if err != nil {
		t.Fatalf("NewFiles: %v", err)
	}
	catalog, err := store.OpenCatalog(context.Background(), filepath.Join(root, "c.db"))
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	t.Cleanup(catalog.Close)

	cfg := config.Default()
	cfg.MaxUploadBytes = 16
	s := New(cfg, pipeline.New(nil, nil, nil), files, catalog, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, uploadRequest(t, "/upload", "big.csv", strings.Repeat("a,b\n", 32)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
}
