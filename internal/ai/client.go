// Package ai defines the text-generation contract the assessment pipeline
// depends on, builds the prompts it sends, parses the untrusted replies, and
// provides OpenAI-compatible and Anthropic-backed implementations.
package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransport marks every failure to obtain a reply from the model service:
// network errors, rejected credentials, non-200 statuses, malformed response
// envelopes. A reply whose text is not the JSON we asked for is NOT a
// transport error; that is handled by the parser's fallbacks.
var ErrTransport = errors.New("ai: transport failure")

// ErrMissingAPIKey is returned (wrapped in ErrTransport) when a client was
// constructed without a credential. It is reported at call time so the
// service can start and explain the problem to the user.
var ErrMissingAPIKey = errors.New("ai: API key is not configured")

// Request is the provider-neutral request payload produced by Build.
type Request struct {
	// Persona becomes the system message.
	Persona string
	// Task becomes the single user message.
	Task        string
	Temperature float64
	MaxTokens   int
}

// Completer is the interface the pipeline uses to reach the model service.
// Implementations return the raw text of the first reply and must be safe to
// call concurrently. Any non-nil error wraps ErrTransport.
// Tests inject a stub that returns canned text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// transportf builds an error that matches ErrTransport under errors.Is.
func transportf(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrTransport, fmt.Errorf(format, args...))
}
