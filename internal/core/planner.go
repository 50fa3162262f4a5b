package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rigdev/apprig/internal/dart"
)

// Planner turns instructions into plans and materializes operation
// content through the model backend.
type Planner struct {
	model      ModelClient
	workspace  Workspace
	classifier Classifier
	layout     Layout
	maxTokens  int
}

// NewPlanner creates a Planner. workspace is only used to render context.
func NewPlanner(model ModelClient, workspace Workspace, classifier Classifier, layout Layout, maxTokens int) *Planner {
	return &Planner{
		model:      model,
		workspace:  workspace,
		classifier: classifier,
		layout:     layout,
		maxTokens:  maxTokens,
	}
}

// AnalyzeTaskNeeds classifies instruction against state.
func (p *Planner) AnalyzeTaskNeeds(ctx context.Context, instruction string, state *ProjectState) (TaskNeeds, error) {
	if strings.TrimSpace(instruction) == "" {
		return TaskNeeds{}, &PlanningError{Instruction: instruction, Reason: "instruction is empty"}
	}
	needs, err := p.classifier.Classify(ctx, instruction, state)
	if err != nil {
		var pe *PlanningError
		if errors.As(err, &pe) {
			return TaskNeeds{}, err
		}
		return TaskNeeds{}, &PlanningError{Instruction: instruction, Reason: err.Error()}
	}
	return needs, nil
}

// GenerateTaskPlan builds the ordered plan for instruction. The result
// depends only on the instruction and state.
func (p *Planner) GenerateTaskPlan(ctx context.Context, instruction string, state *ProjectState) (*TaskPlan, error) {
	needs, err := p.AnalyzeTaskNeeds(ctx, instruction, state)
	if err != nil {
		return nil, err
	}
	plan, err := buildPlan(instruction, needs, state, p.layout)
	if err != nil {
		return nil, err
	}
	componentLog("planner").Debug("plan generated", "scope", needs.Scope, "subject", needs.Subject, "operations", len(plan.Operations))
	return plan, nil
}

// buildPlan lays out operations in dependency order: service, model,
// shared state, screen, then entry-file wiring. Existing files are never
// re-created.
func buildPlan(instruction string, needs TaskNeeds, state *ProjectState, l Layout) (*TaskPlan, error) {
	plan := &TaskPlan{
		Instruction:  instruction,
		Needs:        needs,
		BaseRevision: state.Revision,
	}
	add := func(op FileOperation) {
		plan.Operations = append(plan.Operations, op)
	}
	subject := needs.Subject
	className := PascalCase(subject)

	// support creates the helper files a screen or entry change relies on
	// and returns their paths.
	support := func(auxiliary bool) []string {
		var deps []string
		need := func(want bool, target, rationale string) {
			if !want {
				return
			}
			if !state.Has(target) {
				add(FileOperation{
					Path:      target,
					Kind:      OpCreate,
					Rationale: rationale,
					Auxiliary: auxiliary,
					DependsOn: append([]string(nil), deps...),
				})
			}
			deps = append(deps, target)
		}
		need(needs.NeedsNetwork, l.ServicePath(subject),
			fmt.Sprintf("Create %sService with the network calls the feature needs.", className))
		need(needs.NeedsModel, l.ModelPath(subject),
			fmt.Sprintf("Create the %s data model.", className))
		need(needs.NeedsSharedState, l.ProviderPath(subject),
			fmt.Sprintf("Create %sProvider, a ChangeNotifier holding the shared state.", className))
		return deps
	}

	// entry wires new screens and providers into the entry file, creating
	// it when the project has none.
	entry := func(rationale string, deps []string, auxiliary bool) {
		kind := OpModify
		if !state.Has(l.EntryFile) {
			kind = OpCreate
			rationale = "Create the entry file with MultiProvider, MaterialApp, initialRoute and named routes. " + rationale
		}
		add(FileOperation{
			Path:      l.EntryFile,
			Kind:      kind,
			Rationale: rationale,
			DependsOn: deps,
			Auxiliary: auxiliary,
		})
	}

	switch needs.Scope {
	case ScopeNewScreen:
		screen := l.ScreenPath(subject)
		if state.Has(screen) {
			return nil, &PlanningError{Instruction: instruction, Reason: fmt.Sprintf("screen %s already exists", screen)}
		}
		deps := support(true)
		add(FileOperation{
			Path:      screen,
			Kind:      OpCreate,
			Rationale: fmt.Sprintf("Create %s, a screen widget that does: %s", ScreenClass(subject), instruction),
			DependsOn: deps,
		})
		var wiring []string
		wiring = append(wiring, fmt.Sprintf("import %s and register the route '%s' for %s", screen, RouteName(subject), ScreenClass(subject)))
		if state.Has(l.ProviderPath(subject)) || needs.NeedsSharedState {
			wiring = append(wiring, fmt.Sprintf("make sure %sProvider is registered in MultiProvider", className))
		}
		if !hasScreens(state, l) {
			wiring = append(wiring, fmt.Sprintf("set initialRoute to '%s'", RouteName(subject)))
		}
		entryDeps := append(append([]string(nil), deps...), screen)
		entry(capitalize(strings.Join(wiring, "; "))+".", entryDeps, true)

	case ScopeModifyScreen:
		add(FileOperation{
			Path:      needs.TargetPath,
			Kind:      OpModify,
			Rationale: fmt.Sprintf("Update %s: %s", ScreenClass(subject), instruction),
		})

	case ScopeModifyEntry:
		add(FileOperation{
			Path:      l.EntryFile,
			Kind:      OpModify,
			Rationale: "Update the app shell: " + instruction,
		})

	case ScopeSharedState:
		provider := l.ProviderPath(subject)
		if state.Has(provider) {
			return nil, &PlanningError{Instruction: instruction, Reason: fmt.Sprintf("%s already exists", provider)}
		}
		var deps []string
		if needs.NeedsModel && !state.Has(l.ModelPath(subject)) {
			add(FileOperation{
				Path:      l.ModelPath(subject),
				Kind:      OpCreate,
				Rationale: fmt.Sprintf("Create the %s data model held by the provider.", className),
				Auxiliary: true,
			})
			deps = append(deps, l.ModelPath(subject))
		}
		add(FileOperation{
			Path:      provider,
			Kind:      OpCreate,
			Rationale: fmt.Sprintf("Create %sProvider, a ChangeNotifier for: %s", className, instruction),
			DependsOn: deps,
		})
		entry(fmt.Sprintf("Import %s and register %sProvider in MultiProvider.", provider, className),
			[]string{provider}, true)

	case ScopeService:
		target := l.ServicePath(subject)
		if state.Has(target) {
			return nil, &PlanningError{Instruction: instruction, Reason: fmt.Sprintf("%s already exists", target)}
		}
		var deps []string
		if needs.NeedsModel && !state.Has(l.ModelPath(subject)) {
			add(FileOperation{
				Path:      l.ModelPath(subject),
				Kind:      OpCreate,
				Rationale: fmt.Sprintf("Create the %s data model returned by the service.", className),
				Auxiliary: true,
			})
			deps = append(deps, l.ModelPath(subject))
		}
		add(FileOperation{
			Path:      target,
			Kind:      OpCreate,
			Rationale: fmt.Sprintf("Create %sService: %s", className, instruction),
			DependsOn: deps,
		})

	case ScopeModel:
		target := l.ModelPath(subject)
		if state.Has(target) {
			return nil, &PlanningError{Instruction: instruction, Reason: fmt.Sprintf("%s already exists", target)}
		}
		add(FileOperation{
			Path:      target,
			Kind:      OpCreate,
			Rationale: fmt.Sprintf("Create the %s model class: %s", className, instruction),
		})

	case ScopeDeleteScreen:
		if state.Has(l.EntryFile) {
			add(FileOperation{
				Path: l.EntryFile,
				Kind: OpModify,
				Rationale: fmt.Sprintf("Remove the import of %s and every route or reference to %s.",
					needs.TargetPath, ScreenClass(subject)),
			})
		}
		add(FileOperation{
			Path:      needs.TargetPath,
			Kind:      OpDelete,
			Rationale: fmt.Sprintf("Delete %s.", ScreenClass(subject)),
			Auxiliary: state.Has(l.EntryFile),
		})

	default:
		return nil, &PlanningError{Instruction: instruction, Reason: fmt.Sprintf("unsupported scope %q", needs.Scope)}
	}
	return plan, nil
}

func hasScreens(state *ProjectState, l Layout) bool {
	return len(l.screens(state)) > 0
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

const systemPrompt = `You are a senior Flutter developer editing one file of an existing app.
Reply with the complete Dart source of the requested file and nothing else: no explanations, no markdown.`

// GenerateFileContent asks the model for the content of op. staged is the
// project as it will look once the earlier operations of plan are
// applied. lastDiags, when set, are the validator findings of the
// previous attempt on this operation.
func (p *Planner) GenerateFileContent(ctx context.Context, plan *TaskPlan, op *FileOperation, staged *ProjectState, lastDiags []Diagnostic) (string, error) {
	current := ""
	if op.Kind == OpModify {
		c, ok := staged.Content(op.Path)
		if !ok {
			return "", &NotFoundError{Path: op.Path}
		}
		current = c
	}

	prompt := p.buildPrompt(plan, op, staged, current, lastDiags)
	resp := p.model.Generate(ctx, ModelRequest{
		System:    systemPrompt,
		Prompt:    prompt,
		MaxTokens: p.maxTokens,
	})
	if resp.Err != nil {
		var te *TransportError
		if errors.As(resp.Err, &te) {
			return "", resp.Err
		}
		return "", &TransportError{Err: resp.Err}
	}
	return postprocess(resp.Text), nil
}

func (p *Planner) buildPrompt(plan *TaskPlan, op *FileOperation, staged *ProjectState, current string, lastDiags []Diagnostic) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n\n", plan.Instruction)
	fmt.Fprintf(&b, "File: %s (%s)\n", op.Path, op.Kind)
	fmt.Fprintf(&b, "Goal: %s\n\n", op.Rationale)

	b.WriteString("Project conventions:\n")
	fmt.Fprintf(&b, "- %s is the entry point: a MultiProvider wrapping MaterialApp with initialRoute and named routes.\n", p.layout.EntryFile)
	fmt.Fprintf(&b, "- Screens live in %s as <name>_screen.dart and declare a <Name>Screen widget.\n", p.layout.ScreensDir)
	fmt.Fprintf(&b, "- Shared state lives in %s as ChangeNotifier providers.\n", p.layout.StateDir)
	fmt.Fprintf(&b, "- Network calls live in %s; data classes in %s.\n", p.layout.ServicesDir, p.layout.ModelsDir)
	b.WriteString("- Import project files with relative paths. Use const constructors only where every argument is constant.\n\n")

	if len(plan.History) > 0 {
		b.WriteString("Previous tasks:\n")
		for _, h := range plan.History {
			b.WriteString("- " + h + "\n")
		}
		b.WriteString("\n")
	}

	if ctxText := p.workspace.RenderContextPrompt(staged); ctxText != "" {
		b.WriteString(ctxText)
		b.WriteString("\n")
	}

	if op.Kind == OpModify {
		fmt.Fprintf(&b, "Current content of %s:\n%s\n\n", op.Path, current)
		b.WriteString("Return the whole updated file, keeping everything the task does not ask to change.\n")
	}

	if len(lastDiags) > 0 {
		b.WriteString("\nThe previous attempt for this file was rejected:\n")
		for _, d := range lastDiags {
			b.WriteString("- " + d.String() + "\n")
		}
		b.WriteString("Fix these problems. Make sure every bracket, parenthesis and string is closed.\n")
	}

	if plan.Simplified {
		b.WriteString("\nMake the smallest change that satisfies the task in this single file. Do not reference files that do not exist yet.\n")
	}
	return b.String()
}

var fence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n(.*?)```")

// postprocess extracts the code from a fenced reply and drops `const`
// keywords implied by an enclosing constant expression.
func postprocess(text string) string {
	if m := fence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return dart.StripNestedConst(text) + "\n"
}
