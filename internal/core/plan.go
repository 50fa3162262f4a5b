package core

import (
	"fmt"
	"path"
	"strings"
)

// OperationKind is the file-level action of a FileOperation.
type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpModify OperationKind = "modify"
	OpDelete OperationKind = "delete"
)

// FileOperation is a single file-level change in a TaskPlan.
type FileOperation struct {
	Path      string        `json:"path"`
	Kind      OperationKind `json:"kind"`
	Rationale string        `json:"rationale"`

	// GeneratedContent is populated during generation, never by planning.
	GeneratedContent *string `json:"generated_content,omitempty"`

	// DependsOn lists paths that must exist, or be created earlier in the
	// same plan, before this operation runs.
	DependsOn []string `json:"depends_on,omitempty"`

	// Auxiliary marks scaffolding (shared state, route wiring) that the
	// simplified plan drops.
	Auxiliary bool `json:"auxiliary,omitempty"`
}

// TaskPlan is the ordered set of file operations for one instruction.
type TaskPlan struct {
	Instruction  string          `json:"instruction"`
	Needs        TaskNeeds       `json:"needs"`
	Operations   []FileOperation `json:"operations"`
	Simplified   bool            `json:"simplified"`
	BaseRevision uint64          `json:"base_revision"`

	// History summarises recent turns for prompt construction.
	History []string `json:"-"`

	// LastErrors carries the diagnostics that triggered simplification.
	LastErrors []Diagnostic `json:"last_errors,omitempty"`
}

// Primary returns the first non-auxiliary operation, or nil.
func (p *TaskPlan) Primary() *FileOperation {
	for i := range p.Operations {
		if !p.Operations[i].Auxiliary {
			return &p.Operations[i]
		}
	}
	return nil
}

// Paths returns the target paths in plan order.
func (p *TaskPlan) Paths() []string {
	paths := make([]string, len(p.Operations))
	for i, op := range p.Operations {
		paths[i] = op.Path
	}
	return paths
}

// Summary renders a one-line description of the plan.
func (p *TaskPlan) Summary() string {
	parts := make([]string, len(p.Operations))
	for i, op := range p.Operations {
		parts[i] = fmt.Sprintf("%s %s", op.Kind, op.Path)
	}
	prefix := "plan"
	if p.Simplified {
		prefix = "simplified plan"
	}
	return fmt.Sprintf("%s: %s", prefix, strings.Join(parts, ", "))
}

// clone returns a deep copy so materialization never mutates a validated
// plan.
func (p *TaskPlan) clone() *TaskPlan {
	out := *p
	out.Operations = make([]FileOperation, len(p.Operations))
	for i, op := range p.Operations {
		op.DependsOn = append([]string(nil), op.DependsOn...)
		if op.GeneratedContent != nil {
			c := *op.GeneratedContent
			op.GeneratedContent = &c
		}
		out.Operations[i] = op
	}
	out.History = append([]string(nil), p.History...)
	out.LastErrors = append([]Diagnostic(nil), p.LastErrors...)
	return &out
}

// ValidateTaskPlan performs the structural check that runs before any
// model call: non-empty, clean relative unique paths, known kinds, and
// every referenced path either present in state or created earlier in the
// plan. It returns a *PlanningError describing the first problem.
func ValidateTaskPlan(plan *TaskPlan, state *ProjectState) error {
	if plan == nil || len(plan.Operations) == 0 {
		return &PlanningError{Reason: "plan has no operations"}
	}
	fail := func(format string, args ...any) error {
		return &PlanningError{Instruction: plan.Instruction, Reason: fmt.Sprintf(format, args...)}
	}

	// exists tracks what the tree looks like after each operation.
	exists := make(map[string]bool)
	for _, p := range state.Paths() {
		exists[p] = true
	}
	seen := make(map[string]bool, len(plan.Operations))

	for i, op := range plan.Operations {
		if err := checkRelPath(op.Path); err != nil {
			return fail("operation %d: %v", i, err)
		}
		if seen[op.Path] {
			return fail("operation %d: duplicate path %s", i, op.Path)
		}
		seen[op.Path] = true

		for _, dep := range op.DependsOn {
			if !exists[dep] {
				return fail("operation %d (%s): dependency %s is neither present nor created earlier", i, op.Path, dep)
			}
		}

		switch op.Kind {
		case OpCreate:
			if exists[op.Path] {
				return fail("operation %d: create of existing path %s", i, op.Path)
			}
			exists[op.Path] = true
		case OpModify:
			if !exists[op.Path] {
				return fail("operation %d: modify of absent path %s", i, op.Path)
			}
		case OpDelete:
			if !exists[op.Path] {
				return fail("operation %d: delete of absent path %s", i, op.Path)
			}
			delete(exists, op.Path)
		default:
			return fail("operation %d: unknown kind %q", i, op.Kind)
		}
	}
	return nil
}

// checkRelPath rejects absolute, unclean or escaping paths.
func checkRelPath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return fmt.Errorf("path %q must be relative with forward slashes", p)
	}
	if path.Clean(p) != p {
		return fmt.Errorf("path %q is not clean", p)
	}
	if p == ".." || strings.HasPrefix(p, "../") {
		return fmt.Errorf("path %q escapes the project root", p)
	}
	return nil
}
