// Package infer obtains named-capture extraction patterns for unstructured
// log text from an external inference service.
//
// The orchestration code depends only on the Inferrer capability ("given a
// text sample, return a validated pattern or fail"), so the pipeline is
// testable with a deterministic stub and the HTTP client stays swappable.
//
// Any error from Infer means the same thing to the caller: no usable
// pattern was obtained and the raw-line fallback applies. Inference failure
// is the one designed degrade-not-fail branch in the system.
package infer

import "context"

// Inferrer turns a small leading sample of a file into an extraction
// Pattern. Implementations must return a validated Pattern or an error,
// never a partially usable one.
type Inferrer interface {
	Infer(ctx context.Context, sample []string) (*Pattern, error)
}

// Static is an Inferrer that always returns the same pattern. Used by tests
// and by deployments that pin a known format and skip the remote call.
type Static struct {
	Pattern string
}

func (s Static) Infer(ctx context.Context, sample []string) (*Pattern, error) {
	return Compile(s.Pattern)
}
