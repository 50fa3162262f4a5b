package core

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/rigdev/apprig/internal/config"
)

// Scope is the kind of change an instruction asks for.
type Scope string

const (
	ScopeNewScreen    Scope = "new_screen"
	ScopeModifyScreen Scope = "modify_screen"
	ScopeModifyEntry  Scope = "modify_entry"
	ScopeSharedState  Scope = "add_shared_state"
	ScopeService      Scope = "add_service"
	ScopeModel        Scope = "add_model"
	ScopeDeleteScreen Scope = "delete_screen"
)

var knownScopes = map[Scope]bool{
	ScopeNewScreen:    true,
	ScopeModifyScreen: true,
	ScopeModifyEntry:  true,
	ScopeSharedState:  true,
	ScopeService:      true,
	ScopeModel:        true,
	ScopeDeleteScreen: true,
}

// TaskNeeds is the classifier's reading of an instruction.
type TaskNeeds struct {
	Scope   Scope  `json:"scope"`
	Subject string `json:"subject"`

	// TargetPath is the existing file the instruction refers to, if any.
	TargetPath string `json:"target_path,omitempty"`

	NeedsSharedState bool `json:"needs_shared_state"`
	NeedsRoute       bool `json:"needs_route"`
	NeedsNetwork     bool `json:"needs_network"`
	NeedsModel       bool `json:"needs_model"`
}

// Classifier maps an instruction and the current project to TaskNeeds.
type Classifier interface {
	Classify(ctx context.Context, instruction string, state *ProjectState) (TaskNeeds, error)
}

// Layout holds the conventional locations inside the project root.
type Layout struct {
	EntryFile   string
	ScreensDir  string
	StateDir    string
	ServicesDir string
	ModelsDir   string
}

// LayoutFrom builds a Layout from project configuration.
func LayoutFrom(p config.ProjectConfig) Layout {
	return Layout{
		EntryFile:   p.EntryFile,
		ScreensDir:  p.ScreensDir,
		StateDir:    p.StateDir,
		ServicesDir: p.ServicesDir,
		ModelsDir:   p.ModelsDir,
	}
}

func (l Layout) ScreenPath(subject string) string {
	return path.Join(l.ScreensDir, subject+"_screen.dart")
}

func (l Layout) ProviderPath(subject string) string {
	return path.Join(l.StateDir, subject+"_provider.dart")
}

func (l Layout) ServicePath(subject string) string {
	return path.Join(l.ServicesDir, subject+"_service.dart")
}

func (l Layout) ModelPath(subject string) string {
	return path.Join(l.ModelsDir, subject+".dart")
}

// screens maps the subject of every existing screen file to its path.
func (l Layout) screens(state *ProjectState) map[string]string {
	out := make(map[string]string)
	prefix := l.ScreensDir + "/"
	for _, p := range state.Paths() {
		if !strings.HasPrefix(p, prefix) || !strings.HasSuffix(p, "_screen.dart") {
			continue
		}
		name := strings.TrimSuffix(path.Base(p), "_screen.dart")
		out[name] = p
	}
	return out
}

// PascalCase turns a snake_case subject into a Dart type name.
func PascalCase(subject string) string {
	var b strings.Builder
	for _, part := range strings.Split(subject, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// ScreenClass is the widget class name for a screen subject.
func ScreenClass(subject string) string {
	return PascalCase(subject) + "Screen"
}

// RouteName is the named route for a screen subject.
func RouteName(subject string) string {
	return "/" + subject
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var (
	createVerbs = wordSet("add", "create", "new", "make", "build", "generate", "introduce", "implement")
	modifyVerbs = wordSet("change", "modify", "update", "rename", "edit", "fix", "set", "replace",
		"adjust", "improve", "tweak", "style", "move", "show", "display", "hide", "use", "put", "make")
	deleteVerbs = wordSet("delete", "remove", "drop")

	screenNouns  = wordSet("screen", "page", "view")
	serviceNouns = wordSet("service", "api", "client", "repository")
	stateNouns   = wordSet("provider", "state", "store", "notifier")
	modelNouns   = wordSet("model", "entity", "schema")

	networkWords = wordSet("api", "fetch", "http", "https", "network", "service", "backend",
		"server", "endpoint", "remote", "rest", "download", "online")
	stateWords = wordSet("state", "provider", "shared", "global", "store", "notifier", "persist")
	modelWords = wordSet("model", "entity", "schema", "data")

	stopwords = wordSet("a", "an", "the", "my", "our", "your", "this", "that", "these", "those",
		"with", "for", "to", "of", "and", "or", "in", "on", "at", "by", "from", "into", "which",
		"shows", "showing", "listing", "lists", "displaying", "displays", "containing", "contains",
		"called", "named", "simple", "basic", "fixed", "static", "some", "few", "several", "all",
		"existing", "current", "app", "application", "please", "new", "s", "it", "its", "is",
		"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten",
		"title", "text", "button", "color", "colour", "label", "shared", "global", "data")
)

func tokenize(instruction string) []string {
	return wordPattern.FindAllString(strings.ToLower(instruction), -1)
}

func hasAny(tokens []string, set map[string]bool) bool {
	return indexOfAny(tokens, set) >= 0
}

func indexOfAny(tokens []string, set map[string]bool) int {
	for i, t := range tokens {
		if set[t] {
			return i
		}
	}
	return -1
}

func meaningful(w string) bool {
	if stopwords[w] || createVerbs[w] || modifyVerbs[w] || deleteVerbs[w] {
		return false
	}
	if screenNouns[w] || serviceNouns[w] || stateNouns[w] || modelNouns[w] {
		return false
	}
	return w[0] < '0' || w[0] > '9'
}

// subjectFor picks the name of the thing introduced by the noun at
// tokens[noun]: the word right before it when that word is meaningful,
// otherwise the first meaningful word after it.
func subjectFor(tokens []string, noun int) string {
	if noun > 0 && meaningful(tokens[noun-1]) {
		return tokens[noun-1]
	}
	for _, t := range tokens[noun+1:] {
		if meaningful(t) {
			return t
		}
	}
	for _, t := range tokens {
		if meaningful(t) {
			return t
		}
	}
	return ""
}

// RuleClassifier classifies instructions with keyword rules over the
// instruction and the existing screen files.
type RuleClassifier struct {
	layout Layout
}

// NewRuleClassifier returns the default keyword classifier.
func NewRuleClassifier(layout Layout) *RuleClassifier {
	return &RuleClassifier{layout: layout}
}

var _ Classifier = (*RuleClassifier)(nil)

// Classify implements Classifier.
func (c *RuleClassifier) Classify(_ context.Context, instruction string, state *ProjectState) (TaskNeeds, error) {
	tokens := tokenize(instruction)
	if len(tokens) == 0 {
		return TaskNeeds{}, &PlanningError{Instruction: instruction, Reason: "instruction is empty"}
	}
	fail := func(reason string) (TaskNeeds, error) {
		return TaskNeeds{}, &PlanningError{Instruction: instruction, Reason: reason}
	}

	screens := c.layout.screens(state)
	existing, existingPath := c.findScreen(tokens, screens)
	hasEntry := state.Has(c.layout.EntryFile)

	needs := TaskNeeds{
		NeedsNetwork:     hasAny(tokens, networkWords),
		NeedsSharedState: hasAny(tokens, stateWords),
		NeedsModel:       hasAny(tokens, modelWords),
	}

	screenIdx := indexOfAny(tokens, screenNouns)
	creating := hasAny(tokens, createVerbs)
	modifying := hasAny(tokens, modifyVerbs)

	switch {
	case hasAny(tokens, deleteVerbs) && screenIdx >= 0:
		if existing == "" {
			return fail("no existing screen matches the instruction")
		}
		needs.Scope = ScopeDeleteScreen
		needs.Subject = existing
		needs.TargetPath = existingPath
		needs.NeedsRoute = hasEntry
		needs.NeedsSharedState, needs.NeedsNetwork, needs.NeedsModel = false, false, false
		return needs, nil

	case creating && screenIdx >= 0:
		subject := subjectFor(tokens, screenIdx)
		if subject == "" {
			return fail("cannot name the new screen")
		}
		if p, ok := screens[subject]; ok {
			needs.Scope = ScopeModifyScreen
			needs.Subject = subject
			needs.TargetPath = p
			return needs, nil
		}
		needs.Scope = ScopeNewScreen
		needs.Subject = subject
		needs.NeedsRoute = true
		return needs, nil

	case existing != "" && (creating || modifying):
		needs.Scope = ScopeModifyScreen
		needs.Subject = existing
		needs.TargetPath = existingPath
		return needs, nil
	}

	if creating {
		if i := indexOfAny(tokens, serviceNouns); i >= 0 {
			return c.standalone(needs, ScopeService, tokens, i, fail)
		}
		if i := indexOfAny(tokens, stateNouns); i >= 0 {
			return c.standalone(needs, ScopeSharedState, tokens, i, fail)
		}
		if i := indexOfAny(tokens, modelNouns); i >= 0 {
			return c.standalone(needs, ScopeModel, tokens, i, fail)
		}
	}

	if (modifying || creating) && hasEntry {
		needs.Scope = ScopeModifyEntry
		needs.TargetPath = c.layout.EntryFile
		needs.NeedsSharedState, needs.NeedsNetwork, needs.NeedsModel = false, false, false
		return needs, nil
	}
	return fail("instruction does not map to a supported change")
}

func (c *RuleClassifier) standalone(needs TaskNeeds, scope Scope, tokens []string, noun int,
	fail func(string) (TaskNeeds, error)) (TaskNeeds, error) {
	subject := subjectFor(tokens, noun)
	if subject == "" {
		return fail(fmt.Sprintf("cannot name the %s", strings.ReplaceAll(string(scope), "_", " ")))
	}
	needs.Scope = scope
	needs.Subject = subject
	switch scope {
	case ScopeService:
		needs.NeedsNetwork = true
		needs.NeedsSharedState = false
	case ScopeSharedState:
		needs.NeedsSharedState = true
		needs.NeedsNetwork = false
		needs.NeedsRoute = false
	case ScopeModel:
		needs.NeedsModel = true
		needs.NeedsNetwork, needs.NeedsSharedState = false, false
	}
	return needs, nil
}

// findScreen returns the first existing screen named by the instruction,
// trying single words and adjacent word pairs joined with '_'.
func (c *RuleClassifier) findScreen(tokens []string, screens map[string]string) (string, string) {
	for i, t := range tokens {
		if i+1 < len(tokens) {
			pair := t + "_" + tokens[i+1]
			if p, ok := screens[pair]; ok {
				return pair, p
			}
		}
		if p, ok := screens[t]; ok {
			return t, p
		}
	}
	return "", ""
}

// ModelClassifier asks the model backend for a JSON TaskNeeds and falls
// back to rules when the reply is unusable.
type ModelClassifier struct {
	model    ModelClient
	fallback *RuleClassifier
	layout   Layout
}

// NewModelClassifier returns a classifier backed by model.
func NewModelClassifier(model ModelClient, layout Layout) *ModelClassifier {
	return &ModelClassifier{model: model, fallback: NewRuleClassifier(layout), layout: layout}
}

var _ Classifier = (*ModelClassifier)(nil)

const classifierSystem = `You classify change requests for a Flutter app. Reply with one JSON object and nothing else.`

// Classify implements Classifier.
func (c *ModelClassifier) Classify(ctx context.Context, instruction string, state *ProjectState) (TaskNeeds, error) {
	if strings.TrimSpace(instruction) == "" {
		return TaskNeeds{}, &PlanningError{Instruction: instruction, Reason: "instruction is empty"}
	}

	var screens []string
	for name := range c.layout.screens(state) {
		screens = append(screens, name)
	}

	var b strings.Builder
	b.WriteString("Instruction: " + instruction + "\n\n")
	sort.Strings(screens)
	fmt.Fprintf(&b, "Existing screens: %s\n", strings.Join(screens, ", "))
	fmt.Fprintf(&b, "Entry file present: %t\n\n", state.Has(c.layout.EntryFile))
	b.WriteString(`Return {"scope": one of "new_screen", "modify_screen", "modify_entry", "add_shared_state", "add_service", "add_model", "delete_screen", `)
	b.WriteString(`"subject": a snake_case name, "needs_shared_state": bool, "needs_route": bool, "needs_network": bool, "needs_model": bool}`)

	resp := c.model.Generate(ctx, ModelRequest{System: classifierSystem, Prompt: b.String(), MaxTokens: 256})
	if resp.Err != nil {
		componentLog("classifier").Warn("model classification failed, using rules", "error", resp.Err)
		return c.fallback.Classify(ctx, instruction, state)
	}

	needs, err := c.parse(resp.Text, state)
	if err != nil {
		componentLog("classifier").Warn("unusable classification, using rules", "error", err)
		return c.fallback.Classify(ctx, instruction, state)
	}
	return needs, nil
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)
var subjectPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func (c *ModelClassifier) parse(text string, state *ProjectState) (TaskNeeds, error) {
	raw := jsonObject.FindString(text)
	if raw == "" {
		return TaskNeeds{}, fmt.Errorf("no JSON object in reply")
	}
	var needs TaskNeeds
	if err := json.Unmarshal([]byte(raw), &needs); err != nil {
		return TaskNeeds{}, fmt.Errorf("decode reply: %w", err)
	}
	if !knownScopes[needs.Scope] {
		return TaskNeeds{}, fmt.Errorf("unknown scope %q", needs.Scope)
	}

	screens := c.layout.screens(state)
	switch needs.Scope {
	case ScopeModifyEntry:
		if !state.Has(c.layout.EntryFile) {
			return TaskNeeds{}, fmt.Errorf("entry file %s is absent", c.layout.EntryFile)
		}
		needs.Subject = ""
		needs.TargetPath = c.layout.EntryFile
		return needs, nil
	case ScopeModifyScreen, ScopeDeleteScreen:
		p, ok := screens[needs.Subject]
		if !ok {
			return TaskNeeds{}, fmt.Errorf("no screen named %q", needs.Subject)
		}
		needs.TargetPath = p
	default:
		needs.TargetPath = ""
	}
	if !subjectPattern.MatchString(needs.Subject) {
		return TaskNeeds{}, fmt.Errorf("invalid subject %q", needs.Subject)
	}
	if needs.Scope == ScopeNewScreen {
		if _, ok := screens[needs.Subject]; ok {
			return TaskNeeds{}, fmt.Errorf("screen %q already exists", needs.Subject)
		}
		needs.NeedsRoute = true
	}
	return needs, nil
}
