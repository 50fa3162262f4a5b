// Package validator is the syntactic sieve for generated Dart source:
// delimiter balance, string and comment termination, and the structural
// conventions of entry and screen files, plus a single deterministic
// repair pass.
package validator

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/rigdev/apprig/internal/core"
	"github.com/rigdev/apprig/internal/dart"
	"github.com/rigdev/apprig/internal/logging"
)

// Structural diagnostic codes. Lexical codes come from package dart.
const (
	CodeEmptySource        = "empty_source"
	CodeMissingEntryPoint  = "missing_entry_point"
	CodeDuplicateEntry     = "duplicate_entry_point"
	CodeMissingWidgetClass = "missing_widget_class"
)

var (
	mainDecl  = regexp.MustCompile(`\bmain\s*\(`)
	classDecl = regexp.MustCompile(`\b(?:abstract\s+|sealed\s+|base\s+|final\s+)?class\s+[A-Za-z_$][A-Za-z0-9_$]*`)
)

// Validator checks Dart source units against the project layout.
type Validator struct {
	entryFile  string
	screensDir string
}

var _ core.CodeValidator = (*Validator)(nil)

// New returns a Validator that applies the entry-point rule to entryFile
// and the widget-class rule to files under screensDir.
func New(entryFile, screensDir string) *Validator {
	return &Validator{
		entryFile:  path.Clean(entryFile),
		screensDir: strings.TrimSuffix(path.Clean(screensDir), "/"),
	}
}

// ValidateDartCode runs the lexical and structural checks on content as
// the file at path.
func (v *Validator) ValidateDartCode(path, content string) core.ValidationResult {
	if strings.TrimSpace(content) == "" {
		return core.ValidationResult{Errors: []core.Diagnostic{{
			Code:    CodeEmptySource,
			Message: "generated source is empty",
		}}}
	}

	res := dart.Scan(content)
	var diags []core.Diagnostic
	for _, p := range res.Problems {
		diags = append(diags, core.Diagnostic{
			Line:    p.Line,
			Column:  p.Column,
			Code:    p.Code,
			Message: p.Message,
		})
	}

	switch {
	case path == v.entryFile:
		diags = append(diags, v.checkEntryPoint(res)...)
	case v.isScreen(path):
		if len(topLevelMatches(res, classDecl)) == 0 {
			diags = append(diags, core.Diagnostic{
				Code:    CodeMissingWidgetClass,
				Message: "screen file declares no top-level class",
			})
		}
	}

	return core.ValidationResult{OK: len(diags) == 0, Errors: diags}
}

// FixCommonDartIssues applies the deterministic repair pass. It is
// idempotent: fixing already-fixed content returns it unchanged.
func (v *Validator) FixCommonDartIssues(content string) string {
	return FixCommonDartIssues(content)
}

// ValidateAndFixDartCode validates content, and when that fails runs the
// repair pass exactly once and validates again.
func (v *Validator) ValidateAndFixDartCode(path, content string) core.ValidationResult {
	first := v.ValidateDartCode(path, content)
	if first.OK {
		return first
	}

	fixed := FixCommonDartIssues(content)
	if fixed == content {
		return first
	}

	second := v.ValidateDartCode(path, fixed)
	if second.OK {
		logging.Debug("repair pass resolved diagnostics",
			"component", "validator", "path", path, "resolved", len(first.Errors))
		second.RepairedContent = &fixed
	}
	return second
}

// ValidateAndFix implements core.CodeValidator.
func (v *Validator) ValidateAndFix(path, content string) core.ValidationResult {
	return v.ValidateAndFixDartCode(path, content)
}

func (v *Validator) checkEntryPoint(res *dart.Result) []core.Diagnostic {
	mains := topLevelMatches(res, mainDecl)
	switch len(mains) {
	case 1:
		return nil
	case 0:
		return []core.Diagnostic{{
			Code:    CodeMissingEntryPoint,
			Message: "entry file has no top-level main()",
		}}
	default:
		line, col := res.Position(mains[1])
		return []core.Diagnostic{{
			Line:    line,
			Column:  col,
			Code:    CodeDuplicateEntry,
			Message: fmt.Sprintf("entry file declares main() %d times", len(mains)),
		}}
	}
}

func (v *Validator) isScreen(p string) bool {
	return v.screensDir != "" && v.screensDir != "." &&
		strings.HasPrefix(p, v.screensDir+"/") && strings.HasSuffix(p, ".dart")
}

// topLevelMatches returns the offsets of re matches in code at bracket
// depth zero that are not member accesses.
func topLevelMatches(res *dart.Result, re *regexp.Regexp) []int {
	var out []int
	for _, loc := range re.FindAllIndex(res.Masked, -1) {
		start := loc[0]
		if res.Depth[start] != 0 {
			continue
		}
		if start > 0 && res.Masked[start-1] == '.' {
			continue
		}
		out = append(out, start)
	}
	return out
}
