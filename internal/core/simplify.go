package core

import (
	"fmt"
	"strings"
)

// GenerateSimplifiedTaskPlan derives the fallback plan from a plan whose
// generation was exhausted: only the primary operation survives, its
// auxiliary scaffolding is dropped, and the rationale carries the last
// diagnostics. plan itself is left untouched.
func GenerateSimplifiedTaskPlan(plan *TaskPlan, state *ProjectState, lastErrors []Diagnostic) (*TaskPlan, error) {
	primary := plan.Primary()
	if primary == nil {
		return nil, &PlanningError{Instruction: plan.Instruction, Reason: "plan has no primary operation to fall back to"}
	}

	op := FileOperation{
		Path:      primary.Path,
		Kind:      primary.Kind,
		Rationale: primary.Rationale,
	}
	// Dependencies on dropped scaffolding no longer hold.
	for _, dep := range primary.DependsOn {
		if state.Has(dep) {
			op.DependsOn = append(op.DependsOn, dep)
		}
	}

	var b strings.Builder
	b.WriteString(op.Rationale)
	b.WriteString("\nKeep the change minimal and self-contained in this file.")
	if len(lastErrors) > 0 {
		fmt.Fprintf(&b, " Earlier attempts failed with: %s.", formatDiagnostics(lastErrors, 5))
	}
	op.Rationale = b.String()

	needs := plan.Needs
	needs.NeedsSharedState = false
	needs.NeedsRoute = false
	needs.NeedsNetwork = false
	needs.NeedsModel = false

	return &TaskPlan{
		Instruction:  plan.Instruction,
		Needs:        needs,
		Operations:   []FileOperation{op},
		Simplified:   true,
		BaseRevision: state.Revision,
		History:      append([]string(nil), plan.History...),
		LastErrors:   append([]Diagnostic(nil), lastErrors...),
	}, nil
}
