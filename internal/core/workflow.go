package core

import (
	"context"
	"fmt"
)

// --- Adapter interfaces defined in core to avoid import cycles ---

// ModelRequest is a backend-agnostic generation request.
type ModelRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}

// ModelResponse carries either generated text or a *TransportError.
type ModelResponse struct {
	Text string
	Err  error
}

// ModelClient generates text from a prompt. Implementations never return
// transport failures any other way than ModelResponse.Err.
type ModelClient interface {
	Generate(ctx context.Context, req ModelRequest) ModelResponse
}

// Diagnostic is one problem found by the code validator.
type Diagnostic struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Line == 0 {
		return fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
	return fmt.Sprintf("%d:%d %s: %s", d.Line, d.Column, d.Code, d.Message)
}

// ValidationResult is the outcome of validating one generated source unit.
// When OK is true and RepairedContent is set, callers must use the repaired
// content.
type ValidationResult struct {
	OK              bool         `json:"ok"`
	Errors          []Diagnostic `json:"errors,omitempty"`
	RepairedContent *string      `json:"repaired_content,omitempty"`
}

// CodeValidator validates generated source and applies one repair pass.
type CodeValidator interface {
	ValidateAndFix(path, content string) ValidationResult
}

// PlanGuard vets a structurally valid plan before generation. A non-nil
// error rejects the turn.
type PlanGuard interface {
	CheckPlan(plan *TaskPlan) error
}

// Workspace owns the project snapshot and all writes to the project root.
type Workspace interface {
	UpdateContext() error
	Snapshot() *ProjectState
	RenderContextPrompt(state *ProjectState) string
	GetFileContent(path string) (string, error)
	UpdateFile(path, content string, kind OperationKind) error
}

// TurnRecorder persists turn history. Optional.
type TurnRecorder interface {
	SaveTurn(turn *Turn) error
	AppendLog(turnID, level, message string) error
	RecentTurns(limit int) ([]Turn, error)
}
