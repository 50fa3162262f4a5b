package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestTurnTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    TurnPhase
		to      TurnPhase
		wantErr bool
	}{
		// Forward path
		{"queued→planning", PhaseQueued, PhasePlanning, false},
		{"planning→generating", PhasePlanning, PhaseGenerating, false},
		{"generating→committing", PhaseGenerating, PhaseCommitting, false},
		{"committing→completed", PhaseCommitting, PhaseCompleted, false},

		// Fallback and dry run
		{"generating→simplifying", PhaseGenerating, PhaseSimplifying, false},
		{"simplifying→generating", PhaseSimplifying, PhaseGenerating, false},
		{"generating→completed (dry run)", PhaseGenerating, PhaseCompleted, false},

		// Failure from every non-terminal phase
		{"queued→failed", PhaseQueued, PhaseFailed, false},
		{"planning→failed", PhasePlanning, PhaseFailed, false},
		{"generating→failed", PhaseGenerating, PhaseFailed, false},
		{"simplifying→failed", PhaseSimplifying, PhaseFailed, false},
		{"committing→failed", PhaseCommitting, PhaseFailed, false},

		// Terminal phases
		{"completed→planning REJECTED", PhaseCompleted, PhasePlanning, true},
		{"completed→failed REJECTED", PhaseCompleted, PhaseFailed, true},
		{"failed→planning REJECTED", PhaseFailed, PhasePlanning, true},

		// Skipping phases
		{"queued→generating REJECTED", PhaseQueued, PhaseGenerating, true},
		{"planning→committing REJECTED", PhasePlanning, PhaseCommitting, true},
		{"simplifying→committing REJECTED", PhaseSimplifying, PhaseCommitting, true},
		{"committing→generating REJECTED", PhaseCommitting, PhaseGenerating, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turn := &Turn{Status: tt.from}
			err := Transition(turn, tt.to)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s → %s", tt.from, tt.to)
				}
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("error = %v, want ErrInvalidTransition", err)
				}
				if turn.Status != tt.from {
					t.Errorf("status changed to %s on rejected transition", turn.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if turn.Status != tt.to {
				t.Errorf("status = %s, want %s", turn.Status, tt.to)
			}
		})
	}
}

func TestTransitionSetsCompletedAt(t *testing.T) {
	turn := &Turn{Status: PhaseCommitting}
	if err := Transition(turn, PhaseCompleted); err != nil {
		t.Fatal(err)
	}
	if turn.CompletedAt == nil {
		t.Error("CompletedAt not set after transition to completed")
	}
	if turn.Duration() < 0 {
		t.Errorf("negative duration %v", turn.Duration())
	}

	turn2 := &Turn{Status: PhaseGenerating}
	if err := Transition(turn2, PhaseFailed); err != nil {
		t.Fatal(err)
	}
	if turn2.CompletedAt == nil {
		t.Error("CompletedAt not set after transition to failed")
	}
}

func TestNewTurn(t *testing.T) {
	a := NewTurn("add a screen")
	b := NewTurn("add a screen")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids %q and %q must be unique and non-empty", a.ID, b.ID)
	}
	if a.Status != PhaseQueued {
		t.Errorf("status = %s, want queued", a.Status)
	}
	if a.Duration() != 0 {
		t.Errorf("in-flight duration = %v, want 0", a.Duration())
	}
}

func TestAttemptsFor(t *testing.T) {
	turn := &Turn{Attempts: []Attempt{
		{Path: "a", Simplified: false},
		{Path: "a", Simplified: false},
		{Path: "a", Simplified: true},
		{Path: "b", Simplified: false},
	}}
	if got := turn.AttemptsFor("a", false); got != 2 {
		t.Errorf("full attempts = %d, want 2", got)
	}
	if got := turn.AttemptsFor("a", true); got != 1 {
		t.Errorf("simplified attempts = %d, want 1", got)
	}
	if got := turn.AttemptsFor("c", false); got != 0 {
		t.Errorf("unknown path attempts = %d, want 0", got)
	}
}

func TestFailReasonFor(t *testing.T) {
	tests := []struct {
		err  error
		want FailReason
	}{
		{&PlanningError{Reason: "x"}, ReasonPlanning},
		{&GenerationError{Path: "a"}, ReasonGeneration},
		{fmt.Errorf("commit: %w", &ConflictError{Path: "a"}), ReasonConflict},
		{&NotFoundError{Path: "a"}, ReasonNotFound},
		{fmt.Errorf("%w: %v", errCancelled, context.Canceled), ReasonCancelled},
		{errors.New("disk full"), ReasonInfra},
	}
	for _, tt := range tests {
		if got := failReasonFor(tt.err); got != tt.want {
			t.Errorf("failReasonFor(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
