package infer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func geminiReply(t *testing.T, w http.ResponseWriter, text string) {
	t.Helper()
	resp := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Fatalf("encode reply: %v", err)
	}
}

func testClient(t *testing.T, srv *httptest.Server) *Gemini {
	t.Helper()
	g, err := NewGemini(GeminiConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Backoff:    time.Millisecond,
		BackoffMax: 2 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	return g
}

func TestGeminiRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewGemini(GeminiConfig{}); err == nil {
		t.Fatal("NewGemini without key succeeded")
	}
	if _, err := NewGemini(GeminiConfig{APIKey: "   "}); err == nil {
		t.Fatal("NewGemini with blank key succeeded")
	}
}

func TestGeminiInferSuccess(t *testing.T) {
	t.Parallel()

	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing key in query: %s", r.URL.RawQuery)
		}
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Contents) > 0 {
			gotBody.Store(req.Contents[0].Parts[0].Text)
		}
		geminiReply(t, w, `^(?P<timestamp>\S+) (?P<message>.*?)$`)
	}))
	defer srv.Close()

	g := testClient(t, srv)
	p, err := g.Infer(context.Background(), []string{"2024-01-01 started", "2024-01-02 stopped"})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if len(p.Names()) != 2 {
		t.Fatalf("Names = %v", p.Names())
	}

	prompt, _ := gotBody.Load().(string)
	if !strings.Contains(prompt, "2024-01-01 started") {
		t.Fatalf("sample missing from prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "timestamp") {
		t.Fatalf("prompt does not pin canonical group names: %q", prompt)
	}
}

func TestGeminiInferStripsFences(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		geminiReply(t, w, "```regex\n^(?P<message>.*)$\n```")
	}))
	defer srv.Close()

	p, err := testClient(t, srv).Infer(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if p.Text != `^(?P<message>.*)$` {
		t.Fatalf("Text = %q", p.Text)
	}
}

func TestGeminiRetriesBackpressure(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			geminiReply(t, w, `^(?P<message>.*)$`)
		}
	}))
	defer srv.Close()

	if _, err := testClient(t, srv).Infer(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("Infer after retries: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("calls = %d, want 3", n)
	}
}

// A per-attempt client timeout is a transient transport failure and must
// be retried; only the caller's own cancellation ends the call early.
func TestGeminiRetriesAttemptTimeout(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			time.Sleep(300 * time.Millisecond)
			return
		}
		geminiReply(t, w, `^(?P<message>.*)$`)
	}))
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Timeout:    50 * time.Millisecond,
		Backoff:    time.Millisecond,
		BackoffMax: 2 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	if _, err := g.Infer(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("Infer after attempt timeout: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestGeminiCallerCancellationIsFatal(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := testClient(t, srv).Infer(ctx, []string{"x"}); err == nil {
		t.Fatal("Infer with canceled context succeeded")
	}
	if n := atomic.LoadInt32(&calls); n > 1 {
		t.Fatalf("calls = %d, canceled context must not retry", n)
	}
}

func TestGeminiFatalStatusNoRetry(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	if _, err := testClient(t, srv).Infer(context.Background(), []string{"x"}); err == nil {
		t.Fatal("Infer succeeded, want error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls = %d, want 1 (4xx is fatal)", n)
	}
}

func TestGeminiExhaustsAttempts(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := testClient(t, srv).Infer(context.Background(), []string{"x"}); err == nil {
		t.Fatal("Infer succeeded, want error")
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("calls = %d, want 3", n)
	}
}

func TestGeminiUnusablePatternIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		geminiReply(t, w, `no capture groups here`)
	}))
	defer srv.Close()

	if _, err := testClient(t, srv).Infer(context.Background(), []string{"x"}); err == nil {
		t.Fatal("Infer succeeded with an unusable pattern")
	}
}

func TestGeminiEmptySample(t *testing.T) {
	t.Parallel()

	g, err := NewGemini(GeminiConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	if _, err := g.Infer(context.Background(), nil); err == nil {
		t.Fatal("Infer with empty sample succeeded")
	}
}
