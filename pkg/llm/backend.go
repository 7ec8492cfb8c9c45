// Package llm provides inference backend implementations.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/molthive/hivebot/pkg/types"
)

// GenerateRequest is one text-generation call.
type GenerateRequest struct {
	System      string
	Prompt      string
	Temperature float64
}

// Backend is a text-generation service. Implementations must be safe for
// concurrent use, though the arbiter never issues more than one call at a
// time.
type Backend interface {
	// Generate produces text for the request and reports token usage.
	Generate(ctx context.Context, req GenerateRequest) (string, types.TokenUsage, error)
	// Name identifies the backend for logs and telemetry.
	Name() string
}

// UnavailableError reports that the inference backend timed out or could
// not be reached. Callers decide the retry policy; nothing below the
// arbiter retries.
type UnavailableError struct {
	Backend string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("inference backend %s unavailable: %v", e.Backend, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is an inference-unavailable failure.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
