package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTurnInProgress is returned when a turn is requested while another one
// is still running.
var ErrTurnInProgress = errors.New("another turn is in progress")

// PlanningError reports an instruction that cannot be mapped to a valid
// plan. It is fatal for the turn.
type PlanningError struct {
	Instruction string
	Reason      string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning: %s", e.Reason)
}

// TransportError reports an unreachable or timed-out model backend.
type TransportError struct {
	Backend string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport (%s): %v", e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError reports generated content that still fails the syntactic
// sieve after one repair pass.
type ValidationError struct {
	Path        string
	Diagnostics []Diagnostic
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation of %s failed: %s", e.Path, formatDiagnostics(e.Diagnostics, 3))
}

// ConflictError reports a create on a path that already exists, or a
// modify of a file that changed after the plan was built.
type ConflictError struct {
	Path   string
	Detail string
}

func (e *ConflictError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("conflict on %s: %s", e.Path, e.Detail)
	}
	return fmt.Sprintf("conflict: %s already exists", e.Path)
}

// NotFoundError reports a read, modify or delete of an absent path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}

// GenerationError is terminal: both the full and the simplified plan
// exhausted their retries. Nothing was committed.
type GenerationError struct {
	Path            string
	Attempts        int
	LastDiagnostics []Diagnostic
	LastErr         error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("generation failed for %s after %d attempts", e.Path, e.Attempts)
	if len(e.LastDiagnostics) > 0 {
		return msg + ": " + formatDiagnostics(e.LastDiagnostics, 3)
	}
	if e.LastErr != nil {
		return msg + ": " + e.LastErr.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.LastErr }

// exhaustedError is the internal signal that one operation used up its
// attempts. The control loop turns it into a simplified plan or a
// GenerationError.
type exhaustedError struct {
	path            string
	attempts        int
	lastDiagnostics []Diagnostic
	lastErr         error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("%s: attempts exhausted (%d)", e.path, e.attempts)
}

// IsStructural reports whether err aborts a turn without retry.
func IsStructural(err error) bool {
	var pe *PlanningError
	var ce *ConflictError
	var ne *NotFoundError
	return errors.As(err, &pe) || errors.As(err, &ce) || errors.As(err, &ne)
}

func formatDiagnostics(diags []Diagnostic, limit int) string {
	if len(diags) == 0 {
		return "no diagnostics"
	}
	parts := make([]string, 0, limit)
	for i, d := range diags {
		if i == limit {
			parts = append(parts, fmt.Sprintf("(+%d more)", len(diags)-limit))
			break
		}
		parts = append(parts, d.String())
	}
	return strings.Join(parts, "; ")
}
