package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rigdev/apprig/internal/config"
)

// errCancelled marks a turn stopped by its context.
var errCancelled = errors.New("turn cancelled")

// LogFunc receives the progress lines of a turn.
type LogFunc func(turnID, level, message string)

// Engine runs one turn at a time: plan, generate, validate, commit.
type Engine struct {
	planner   *Planner
	workspace Workspace
	validator CodeValidator
	guard     PlanGuard
	recorder  TurnRecorder
	logFn     LogFunc
	log       *slog.Logger

	maxRetries   int
	historyTurns int
	dryRun       bool

	mu sync.Mutex
}

// NewEngine creates an Engine with all dependencies injected.
func NewEngine(cfg *config.Config, planner *Planner, workspace Workspace, validator CodeValidator) *Engine {
	return &Engine{
		planner:      planner,
		workspace:    workspace,
		validator:    validator,
		log:          componentLog("engine"),
		maxRetries:   cfg.Pipeline.Retries(),
		historyTurns: cfg.Pipeline.HistoryTurns,
	}
}

// SetRecorder enables turn persistence.
func (e *Engine) SetRecorder(r TurnRecorder) {
	e.recorder = r
}

// SetGuard installs a policy check run on every validated plan.
func (e *Engine) SetGuard(g PlanGuard) {
	e.guard = g
}

// SetLogFunc registers a callback for turn progress lines.
func (e *Engine) SetLogFunc(fn LogFunc) {
	e.logFn = fn
}

// SetDryRun makes turns stop before committing and report diffs instead.
func (e *Engine) SetDryRun(dryRun bool) {
	e.dryRun = dryRun
}

// Plan returns the validated plan for instruction without generating
// anything.
func (e *Engine) Plan(ctx context.Context, instruction string) (*TaskPlan, error) {
	if !e.mu.TryLock() {
		return nil, ErrTurnInProgress
	}
	defer e.mu.Unlock()

	if err := e.workspace.UpdateContext(); err != nil {
		return nil, fmt.Errorf("update context: %w", err)
	}
	base := e.workspace.Snapshot()
	plan, err := e.planner.GenerateTaskPlan(ctx, instruction, base)
	if err != nil {
		return nil, err
	}
	if err := e.checkPlan(plan, base); err != nil {
		return nil, err
	}
	return plan, nil
}

// Execute runs a full turn for instruction. The returned Turn is non-nil
// whenever a turn was started, including on failure. Terminal failures
// leave the project untouched.
func (e *Engine) Execute(ctx context.Context, instruction string) (*Turn, error) {
	return e.run(ctx, instruction, e.dryRun)
}

// Preview runs a dry-run turn regardless of the engine's dry-run setting.
func (e *Engine) Preview(ctx context.Context, instruction string) (*Turn, error) {
	return e.run(ctx, instruction, true)
}

func (e *Engine) run(ctx context.Context, instruction string, dryRun bool) (*Turn, error) {
	if !e.mu.TryLock() {
		return nil, ErrTurnInProgress
	}
	defer e.mu.Unlock()

	turn := NewTurn(instruction)
	turn.DryRun = dryRun
	e.logf(turn, "info", "turn started: %s", instruction)

	if err := e.workspace.UpdateContext(); err != nil {
		return e.fail(turn, fmt.Errorf("update context: %w", err))
	}
	base := e.workspace.Snapshot()

	if err := Transition(turn, PhasePlanning); err != nil {
		return e.fail(turn, err)
	}
	plan, err := e.planner.GenerateTaskPlan(ctx, instruction, base)
	if err != nil {
		return e.fail(turn, err)
	}
	plan.History = e.history()
	if err := e.checkPlan(plan, base); err != nil {
		return e.fail(turn, err)
	}
	turn.Plan = plan
	e.logf(turn, "info", "%s", plan.Summary())

	if err := Transition(turn, PhaseGenerating); err != nil {
		return e.fail(turn, err)
	}
	done, err := e.materialize(ctx, turn, plan, base)

	var ex *exhaustedError
	if errors.As(err, &ex) {
		e.logf(turn, "warn", "%s exhausted %d attempts, simplifying plan", ex.path, ex.attempts)
		if err := Transition(turn, PhaseSimplifying); err != nil {
			return e.fail(turn, err)
		}
		simple, serr := GenerateSimplifiedTaskPlan(plan, base, ex.lastDiagnostics)
		if serr != nil {
			return e.fail(turn, serr)
		}
		if verr := ValidateTaskPlan(simple, base); verr != nil {
			return e.fail(turn, verr)
		}
		turn.Plan = simple
		turn.Simplified = true
		e.logf(turn, "info", "%s", simple.Summary())

		if err := Transition(turn, PhaseGenerating); err != nil {
			return e.fail(turn, err)
		}
		done, err = e.materialize(ctx, turn, simple, base)
		if errors.As(err, &ex) {
			err = &GenerationError{
				Path:            ex.path,
				Attempts:        ex.attempts,
				LastDiagnostics: ex.lastDiagnostics,
				LastErr:         ex.lastErr,
			}
		}
	}
	if err != nil {
		return e.fail(turn, err)
	}
	turn.Plan = done

	if turn.DryRun {
		turn.Changes = proposedChanges(base, done)
		if err := Transition(turn, PhaseCompleted); err != nil {
			return e.fail(turn, err)
		}
		e.logf(turn, "info", "dry run: %d file(s) would change", len(turn.Changes))
		e.record(turn)
		return turn, nil
	}

	if err := Transition(turn, PhaseCommitting); err != nil {
		return e.fail(turn, err)
	}
	if err := e.commit(turn, base, done); err != nil {
		return e.fail(turn, err)
	}
	if err := e.workspace.UpdateContext(); err != nil {
		e.logf(turn, "warn", "refresh context after commit: %v", err)
	}

	if err := Transition(turn, PhaseCompleted); err != nil {
		return e.fail(turn, err)
	}
	e.logf(turn, "info", "turn completed: %d file(s) changed", len(turn.Changes))
	e.record(turn)
	return turn, nil
}

// materialize generates content for every operation in order over a
// staged copy of base, so later prompts see earlier results. Nothing is
// written.
func (e *Engine) materialize(ctx context.Context, turn *Turn, plan *TaskPlan, base *ProjectState) (*TaskPlan, error) {
	out := plan.clone()
	staged := base.Clone()

	for i := range out.Operations {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", errCancelled, err)
		}
		op := &out.Operations[i]
		if op.Kind == OpDelete {
			staged.Remove(op.Path)
			continue
		}
		content, err := e.retryLoop(ctx, turn, out, op, staged)
		if err != nil {
			return nil, err
		}
		op.GeneratedContent = &content
		staged.Put(op.Path, content)
	}
	return out, nil
}

// commit applies a fully materialized plan. Every operation is checked
// against the live state before the first write. Writes then happen in
// plan order; there is no cross-file rollback, so a failure after some
// writes leaves them in place for the next UpdateContext to adopt.
func (e *Engine) commit(turn *Turn, base *ProjectState, plan *TaskPlan) error {
	if err := e.workspace.UpdateContext(); err != nil {
		return fmt.Errorf("update context: %w", err)
	}
	live := e.workspace.Snapshot()

	for _, op := range plan.Operations {
		switch op.Kind {
		case OpCreate:
			if live.Has(op.Path) {
				return &ConflictError{Path: op.Path}
			}
		case OpModify, OpDelete:
			if !live.Has(op.Path) {
				return &NotFoundError{Path: op.Path}
			}
			if live.FileRevision(op.Path) != base.FileRevision(op.Path) {
				return &ConflictError{Path: op.Path, Detail: "changed since the plan was built"}
			}
		}
	}

	for _, op := range plan.Operations {
		before, _ := live.Content(op.Path)
		after := ""
		if op.GeneratedContent != nil {
			after = *op.GeneratedContent
		}
		if err := e.workspace.UpdateFile(op.Path, after, op.Kind); err != nil {
			return fmt.Errorf("commit %s: %w", op.Path, err)
		}
		patch, added, removed := lineDiff(op.Path, before, after)
		turn.Changes = append(turn.Changes, FileChange{
			Path:     op.Path,
			Kind:     op.Kind,
			Patch:    patch,
			Added:    added,
			Removed:  removed,
			Revision: e.workspace.Snapshot().FileRevision(op.Path),
		})
		e.logf(turn, "info", "%s %s (+%d -%d)", op.Kind, op.Path, added, removed)
	}
	return nil
}

// proposedChanges renders what a materialized plan would do to base.
func proposedChanges(base *ProjectState, plan *TaskPlan) []FileChange {
	changes := make([]FileChange, 0, len(plan.Operations))
	for _, op := range plan.Operations {
		before, _ := base.Content(op.Path)
		after := ""
		if op.GeneratedContent != nil {
			after = *op.GeneratedContent
		}
		patch, added, removed := lineDiff(op.Path, before, after)
		changes = append(changes, FileChange{Path: op.Path, Kind: op.Kind, Patch: patch, Added: added, Removed: removed})
	}
	return changes
}

// checkPlan runs the structural check and then the policy guard.
func (e *Engine) checkPlan(plan *TaskPlan, base *ProjectState) error {
	if err := ValidateTaskPlan(plan, base); err != nil {
		return err
	}
	if e.guard != nil {
		return e.guard.CheckPlan(plan)
	}
	return nil
}

// fail marks turn failed, records it and returns the cause.
func (e *Engine) fail(turn *Turn, cause error) (*Turn, error) {
	turn.FailReason = failReasonFor(cause)
	turn.Error = cause.Error()
	if err := Transition(turn, PhaseFailed); err != nil {
		e.log.Error("transition to failed", "turn", turn.ID, "error", err)
	}
	e.logf(turn, "error", "turn failed (%s): %v", turn.FailReason, cause)
	e.record(turn)
	return turn, cause
}

func (e *Engine) record(turn *Turn) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.SaveTurn(turn); err != nil {
		e.log.Warn("save turn", "turn", turn.ID, "error", err)
	}
}

// history summarises recent turns for planning prompts.
func (e *Engine) history() []string {
	if e.recorder == nil || e.historyTurns <= 0 {
		return nil
	}
	turns, err := e.recorder.RecentTurns(e.historyTurns)
	if err != nil {
		e.log.Warn("load recent turns", "error", err)
		return nil
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		var paths []string
		for _, c := range t.Changes {
			paths = append(paths, fmt.Sprintf("%s %s", c.Kind, c.Path))
		}
		line := fmt.Sprintf("%q: %s", t.Instruction, t.Status)
		if len(paths) > 0 {
			line += " (" + strings.Join(paths, ", ") + ")"
		}
		lines = append(lines, line)
	}
	return lines
}

// logf writes a turn progress line to the structured log, the recorder
// and the registered LogFunc.
func (e *Engine) logf(turn *Turn, level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l := e.log.With("turn", turn.ID, "phase", turn.Status)
	switch level {
	case "error":
		l.Error(msg)
	case "warn":
		l.Warn(msg)
	case "debug":
		l.Debug(msg)
	default:
		l.Info(msg)
	}
	if e.recorder != nil {
		if err := e.recorder.AppendLog(turn.ID, level, msg); err != nil {
			e.log.Debug("append turn log", "error", err)
		}
	}
	if e.logFn != nil {
		e.logFn(turn.ID, level, msg)
	}
}
