package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Attempt statuses.
const (
	AttemptPassed    = "passed"
	AttemptInvalid   = "invalid"
	AttemptTransport = "transport_error"
)

// retryLoop generates content for one operation until it validates or
// maxRetries+1 attempts are spent. Transport failures and validation
// failures both consume an attempt; only the failing operation is
// regenerated. Exhaustion is reported as *exhaustedError.
func (e *Engine) retryLoop(ctx context.Context, turn *Turn, plan *TaskPlan, op *FileOperation, staged *ProjectState) (string, error) {
	limit := e.maxRetries + 1
	var lastDiags []Diagnostic
	var lastErr error

	for n := 1; n <= limit; n++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", errCancelled, err)
		}

		attempt := Attempt{
			Number:     n,
			Path:       op.Path,
			Simplified: plan.Simplified,
			StartedAt:  time.Now().UTC(),
		}

		content, err := e.planner.GenerateFileContent(ctx, plan, op, staged, lastDiags)
		if err != nil {
			var te *TransportError
			if !errors.As(err, &te) {
				return "", err
			}
			attempt.Status = AttemptTransport
			attempt.Error = err.Error()
			e.finishAttempt(turn, attempt)
			e.logf(turn, "warn", "%s attempt %d/%d: %v", op.Path, n, limit, err)
			lastErr = err
			continue
		}

		res := e.validator.ValidateAndFix(op.Path, content)
		if !res.OK {
			attempt.Status = AttemptInvalid
			attempt.Diagnostics = res.Errors
			e.finishAttempt(turn, attempt)
			e.logf(turn, "warn", "%s attempt %d/%d rejected: %s", op.Path, n, limit, formatDiagnostics(res.Errors, 3))
			lastDiags = res.Errors
			lastErr = &ValidationError{Path: op.Path, Diagnostics: res.Errors}
			continue
		}

		if res.RepairedContent != nil {
			content = *res.RepairedContent
			attempt.Repaired = true
		}
		attempt.Status = AttemptPassed
		e.finishAttempt(turn, attempt)
		e.logf(turn, "info", "%s attempt %d/%d passed", op.Path, n, limit)
		return content, nil
	}

	return "", &exhaustedError{
		path:            op.Path,
		attempts:        limit,
		lastDiagnostics: lastDiags,
		lastErr:         lastErr,
	}
}

func (e *Engine) finishAttempt(turn *Turn, a Attempt) {
	a.Duration = time.Since(a.StartedAt)
	turn.Attempts = append(turn.Attempts, a)
}
