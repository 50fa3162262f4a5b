package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TurnPhase represents the current phase of a turn.
type TurnPhase string

const (
	PhaseQueued      TurnPhase = "queued"
	PhasePlanning    TurnPhase = "planning"
	PhaseGenerating  TurnPhase = "generating"
	PhaseSimplifying TurnPhase = "simplifying"
	PhaseCommitting  TurnPhase = "committing"
	PhaseCompleted   TurnPhase = "completed"
	PhaseFailed      TurnPhase = "failed"
)

// terminalPhases are phases from which no transition is allowed.
var terminalPhases = map[TurnPhase]bool{
	PhaseCompleted: true,
	PhaseFailed:    true,
}

// validTransitions defines the allowed from→to phase transitions.
var validTransitions = map[TurnPhase]map[TurnPhase]bool{
	PhaseQueued:      {PhasePlanning: true, PhaseFailed: true},
	PhasePlanning:    {PhaseGenerating: true, PhaseFailed: true},
	PhaseGenerating:  {PhaseSimplifying: true, PhaseCommitting: true, PhaseCompleted: true, PhaseFailed: true},
	PhaseSimplifying: {PhaseGenerating: true, PhaseFailed: true},
	PhaseCommitting:  {PhaseCompleted: true, PhaseFailed: true},
}

// FailReason represents why a turn failed.
type FailReason string

const (
	ReasonPlanning   FailReason = "planning_error"
	ReasonGeneration FailReason = "generation_error"
	ReasonConflict   FailReason = "conflict_error"
	ReasonNotFound   FailReason = "not_found_error"
	ReasonCancelled  FailReason = "cancelled"
	ReasonInfra      FailReason = "infra_error"
)

// Turn records one instruction processed by the engine.
type Turn struct {
	ID          string       `json:"id"`
	Instruction string       `json:"instruction"`
	Status      TurnPhase    `json:"status"`
	Plan        *TaskPlan    `json:"plan,omitempty"`
	Simplified  bool         `json:"simplified"`
	Attempts    []Attempt    `json:"attempts"`
	Changes     []FileChange `json:"changes,omitempty"`
	DryRun      bool         `json:"dry_run,omitempty"`
	FailReason  FailReason   `json:"fail_reason,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Attempt records a single generation try for one operation.
type Attempt struct {
	Number      int           `json:"number"`
	Path        string        `json:"path"`
	Simplified  bool          `json:"simplified"`
	Status      string        `json:"status"` // passed|invalid|transport_error
	Repaired    bool          `json:"repaired,omitempty"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// FileChange is one applied (or, in dry-run, proposed) file operation with
// its textual patch.
type FileChange struct {
	Path     string        `json:"path"`
	Kind     OperationKind `json:"kind"`
	Patch    string        `json:"patch"`
	Added    int           `json:"added"`
	Removed  int           `json:"removed"`
	Revision uint64        `json:"revision,omitempty"`
}

// ErrInvalidTransition is returned when a phase transition is not allowed.
var ErrInvalidTransition = errors.New("invalid phase transition")

// NewTurn creates a queued turn for an instruction.
func NewTurn(instruction string) *Turn {
	return &Turn{
		ID:          uuid.NewString(),
		Instruction: instruction,
		Status:      PhaseQueued,
		Attempts:    []Attempt{},
		CreatedAt:   time.Now().UTC(),
	}
}

// Transition validates and applies a phase transition on a turn.
func Transition(turn *Turn, to TurnPhase) error {
	from := turn.Status

	if terminalPhases[from] {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}

	allowed, ok := validTransitions[from]
	if !ok || !allowed[to] {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}

	turn.Status = to

	if terminalPhases[to] {
		now := time.Now().UTC()
		turn.CompletedAt = &now
	}
	return nil
}

// AttemptsFor counts recorded attempts on path in the full or simplified
// plan.
func (t *Turn) AttemptsFor(path string, simplified bool) int {
	n := 0
	for _, a := range t.Attempts {
		if a.Path == path && a.Simplified == simplified {
			n++
		}
	}
	return n
}

// Duration returns how long the turn ran, or zero while it is in flight.
func (t *Turn) Duration() time.Duration {
	if t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(t.CreatedAt)
}

// failReasonFor maps a turn error onto the taxonomy.
func failReasonFor(err error) FailReason {
	var pe *PlanningError
	var ge *GenerationError
	var ce *ConflictError
	var ne *NotFoundError
	switch {
	case errors.As(err, &pe):
		return ReasonPlanning
	case errors.As(err, &ge):
		return ReasonGeneration
	case errors.As(err, &ce):
		return ReasonConflict
	case errors.As(err, &ne):
		return ReasonNotFound
	case errors.Is(err, errCancelled):
		return ReasonCancelled
	default:
		return ReasonInfra
	}
}
