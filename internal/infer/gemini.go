package infer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GeminiConfig configures the remote inference client.
//
// Defaults are applied by NewGemini; only APIKey has no default and its
// absence is a construction error so a broken credential is caught at
// startup, not on the first upload.
type GeminiConfig struct {
	BaseURL string // default https://generativelanguage.googleapis.com
	Model   string // default gemini-2.5-flash
	APIKey  string

	Timeout     time.Duration // per attempt; default 75s
	MaxAttempts int           // default 3
	Backoff     time.Duration // initial; default 1.5s, doubles per retry
	BackoffMax  time.Duration // default 12s
}

func (c *GeminiConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if c.Model == "" {
		c.Model = "gemini-2.5-flash"
	}
	if c.Timeout <= 0 {
		c.Timeout = 75 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 1500 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 12 * time.Second
	}
}

// Gemini calls the Google Generative Language API and asks it to produce a
// single anchored named-capture pattern for a log sample.
type Gemini struct {
	cfg GeminiConfig
	url string

	// do is an unexported test seam; production code never sets it.
	do func(*http.Request) (*http.Response, error)
}

// NewGemini builds the client. An empty API key is an error.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	cfg.defaults()
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini: missing api key")
	}
	endpoint := strings.TrimRight(cfg.BaseURL, "/") +
		"/v1beta/models/" + url.PathEscape(cfg.Model) + ":generateContent"
	hc := &http.Client{Timeout: cfg.Timeout}
	return &Gemini{cfg: cfg, url: endpoint, do: hc.Do}, nil
}

// The prompt pins down the contract the rest of the pipeline relies on:
// whole-line anchoring, one indivisible timestamp group, canonical group
// names where they apply, and a bare-text answer.
const promptHeader = `You are given the first lines of a log file. Reply with exactly one Go-compatible (RE2) regular expression that matches each full line and extracts its fields as named capture groups, and nothing else.

Rules:
- Anchor the expression with ^ at the start and $ at the end of the line.
- If a line carries a timestamp, capture the whole timestamp as ONE group named "timestamp"; never split date and time.
- Use these group names when a field means the same thing: "timestamp", "log_level", "message", "service_name", "host_name", "trace_id" (any unique correlation identifier), "error_details" (stack traces or error text). Other fields may use short descriptive names.
- Use non-greedy matching (.*?) for variable-length human-readable text.
- RE2 syntax only: no backreferences, no lookarounds. Named groups are (?P<name>...).
- Reply with the bare pattern text. No code fences, no explanation.

Log sample:
`

type gmRequest struct {
	Contents []gmContent `json:"contents"`
}
type gmContent struct {
	Role  string   `json:"role,omitempty"`
	Parts []gmPart `json:"parts"`
}
type gmPart struct {
	Text string `json:"text"`
}
type gmResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// retryableError marks attempts worth repeating: transport failures and the
// two backpressure statuses (429, 503). Every other HTTP error is fatal to
// the call immediately.
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Infer implements Inferrer. It sends the sample once per attempt with
// exponential backoff between attempts and validates the returned text
// before handing it back.
func (g *Gemini) Infer(ctx context.Context, sample []string) (*Pattern, error) {
	if len(sample) == 0 {
		return nil, fmt.Errorf("gemini: empty sample")
	}

	body, err := json.Marshal(gmRequest{
		Contents: []gmContent{{
			Role:  "user",
			Parts: []gmPart{{Text: promptHeader + strings.Join(sample, "\n")}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}

	delay := g.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
			if delay > g.cfg.BackoffMax {
				delay = g.cfg.BackoffMax
			}
		}

		text, err := g.once(ctx, body)
		if err == nil {
			p, cerr := Compile(text)
			if cerr != nil {
				return nil, fmt.Errorf("gemini: unusable pattern: %w", cerr)
			}
			return p, nil
		}

		var re retryableError
		if !errors.As(err, &re) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("gemini: %d attempts exhausted: %w", g.cfg.MaxAttempts, lastErr)
}

func (g *Gemini) once(ctx context.Context, body []byte) (string, error) {
	u := g.url + "?key=" + url.QueryEscape(g.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.do(req)
	if err != nil {
		// Only the caller's own cancellation is fatal. A per-attempt
		// http.Client timeout also unwraps to DeadlineExceeded, and that
		// one is exactly the transient failure retries exist for.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", retryableError{fmt.Errorf("gemini: request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return "", retryableError{fmt.Errorf("gemini: upstream status %d", resp.StatusCode)}
	}
	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("gemini: upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(slurp)))
	}

	var gr gmResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty response")
	}
	text := gr.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: empty pattern text")
	}
	return text, nil
}

var _ Inferrer = (*Gemini)(nil)
