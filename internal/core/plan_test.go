package core

import (
	"errors"
	"strings"
	"testing"
)

func stateWith(files map[string]string) *ProjectState {
	s := NewProjectState()
	for p, c := range files {
		s.Put(p, c)
	}
	return s
}

func TestValidateTaskPlan(t *testing.T) {
	state := stateWith(map[string]string{
		"lib/main.dart":                "void main() {}\n",
		"lib/screens/list_screen.dart": "class ListScreen {}\n",
	})

	tests := []struct {
		name    string
		ops     []FileOperation
		wantErr string
	}{
		{"create then modify entry", []FileOperation{
			{Path: "lib/screens/items_screen.dart", Kind: OpCreate},
			{Path: "lib/main.dart", Kind: OpModify, DependsOn: []string{"lib/screens/items_screen.dart"}},
		}, ""},
		{"delete existing", []FileOperation{
			{Path: "lib/screens/list_screen.dart", Kind: OpDelete},
		}, ""},
		{"empty", nil, "no operations"},
		{"duplicate path", []FileOperation{
			{Path: "lib/main.dart", Kind: OpModify},
			{Path: "lib/main.dart", Kind: OpModify},
		}, "duplicate path"},
		{"create existing", []FileOperation{
			{Path: "lib/main.dart", Kind: OpCreate},
		}, "create of existing"},
		{"modify absent", []FileOperation{
			{Path: "lib/screens/x_screen.dart", Kind: OpModify},
		}, "modify of absent"},
		{"delete absent", []FileOperation{
			{Path: "lib/x.dart", Kind: OpDelete},
		}, "delete of absent"},
		{"dependency created later", []FileOperation{
			{Path: "lib/main.dart", Kind: OpModify, DependsOn: []string{"lib/screens/items_screen.dart"}},
			{Path: "lib/screens/items_screen.dart", Kind: OpCreate},
		}, "dependency"},
		{"dependency deleted earlier", []FileOperation{
			{Path: "lib/screens/list_screen.dart", Kind: OpDelete},
			{Path: "lib/main.dart", Kind: OpModify, DependsOn: []string{"lib/screens/list_screen.dart"}},
		}, "dependency"},
		{"absolute path", []FileOperation{
			{Path: "/etc/passwd", Kind: OpCreate},
		}, "relative"},
		{"escaping path", []FileOperation{
			{Path: "../outside.dart", Kind: OpCreate},
		}, "escapes"},
		{"unclean path", []FileOperation{
			{Path: "lib/./a.dart", Kind: OpCreate},
		}, "not clean"},
		{"unknown kind", []FileOperation{
			{Path: "lib/a.dart", Kind: "rename"},
		}, "unknown kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTaskPlan(&TaskPlan{Instruction: "x", Operations: tt.ops}, state)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var pe *PlanningError
			if !errors.As(err, &pe) {
				t.Fatalf("error = %v, want *PlanningError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestTaskPlanPrimaryAndClone(t *testing.T) {
	content := "x"
	plan := &TaskPlan{Operations: []FileOperation{
		{Path: "lib/providers/a_provider.dart", Kind: OpCreate, Auxiliary: true},
		{Path: "lib/screens/a_screen.dart", Kind: OpCreate, GeneratedContent: &content, DependsOn: []string{"p"}},
	}}
	if got := plan.Primary(); got == nil || got.Path != "lib/screens/a_screen.dart" {
		t.Fatalf("Primary() = %+v", got)
	}

	c := plan.clone()
	*c.Operations[1].GeneratedContent = "changed"
	c.Operations[1].DependsOn[0] = "q"
	if content != "x" || plan.Operations[1].DependsOn[0] != "p" {
		t.Error("clone shares state with the original plan")
	}

	if got := plan.Summary(); got != "plan: create lib/providers/a_provider.dart, create lib/screens/a_screen.dart" {
		t.Errorf("Summary() = %q", got)
	}
}

func TestProjectStateRevisions(t *testing.T) {
	s := NewProjectState()
	s.Put("a", "1")
	s.Put("a", "2")
	s.Put("b", "1")
	if s.Revision != 3 {
		t.Errorf("global revision = %d, want 3", s.Revision)
	}
	if s.FileRevision("a") != 2 || s.FileRevision("b") != 1 {
		t.Errorf("file revisions = %d, %d", s.FileRevision("a"), s.FileRevision("b"))
	}

	c := s.Clone()
	c.Remove("a")
	if !s.Has("a") {
		t.Error("Remove on clone affected the original")
	}
	if c.Revision != 4 {
		t.Errorf("clone revision = %d, want 4", c.Revision)
	}
	c.Remove("missing")
	if c.Revision != 4 {
		t.Error("removing an absent path bumped the revision")
	}

	if s.Equal(c) {
		t.Error("snapshots with different files reported equal")
	}
	if got := s.Paths(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Paths() = %v", got)
	}
}
