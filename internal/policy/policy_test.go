package policy_test

import (
	"errors"
	"testing"

	"github.com/rigdev/apprig/internal/config"
	"github.com/rigdev/apprig/internal/core"
	"github.com/rigdev/apprig/internal/policy"
)

func planOf(ops ...core.FileOperation) *core.TaskPlan {
	return &core.TaskPlan{Instruction: "add a cart screen", Operations: ops}
}

var cartPlan = planOf(
	core.FileOperation{Path: "lib/providers/cart_provider.dart", Kind: core.OpCreate, Auxiliary: true},
	core.FileOperation{Path: "lib/screens/cart_screen.dart", Kind: core.OpCreate},
	core.FileOperation{Path: "lib/main.dart", Kind: core.OpModify, Auxiliary: true},
)

func TestEvaluate_MaxFileChanges(t *testing.T) {
	policies := []config.PolicyConfig{{Name: "limit", Rule: "max_file_changes", Value: "2", Action: "block"}}

	violations := policy.Evaluate(policies, cartPlan)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	if violations[0].Action != "block" {
		t.Fatalf("expected block action, got %s", violations[0].Action)
	}

	if v := policy.Evaluate(policies, planOf(core.FileOperation{Path: "lib/a.dart", Kind: core.OpCreate})); len(v) != 0 {
		t.Fatalf("expected no violations under the limit, got %+v", v)
	}
}

func TestEvaluate_BlockedPaths(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"lib/main.dart", 1},
		{"lib/providers/", 1},
		{"lib/**/*_provider.dart", 1},
		{"pubspec.yaml, android/", 0},
		{" , ", 0},
	}
	for _, tt := range tests {
		policies := []config.PolicyConfig{{Name: "blocked", Rule: "blocked_paths", Value: tt.value}}
		if got := len(policy.Evaluate(policies, cartPlan)); got != tt.want {
			t.Errorf("value %q: got %d violations, want %d", tt.value, got, tt.want)
		}
	}
}

func TestEvaluate_NoDelete(t *testing.T) {
	policies := []config.PolicyConfig{{Name: "keep", Rule: "no_delete", Action: "warn"}}

	violations := policy.Evaluate(policies, planOf(
		core.FileOperation{Path: "lib/screens/old_screen.dart", Kind: core.OpDelete},
		core.FileOperation{Path: "lib/main.dart", Kind: core.OpModify},
	))
	if len(violations) != 1 || violations[0].Action != "warn" {
		t.Fatalf("violations = %+v", violations)
	}
	if v := policy.Evaluate(policies, cartPlan); len(v) != 0 {
		t.Fatalf("expected no violations, got %+v", v)
	}
}

func TestGuard(t *testing.T) {
	if g := policy.NewGuard(nil); g != nil {
		t.Fatal("expected nil guard without policies")
	}

	warnOnly := policy.NewGuard([]config.PolicyConfig{{Name: "limit", Rule: "max_file_changes", Value: "1", Action: "warn"}})
	if err := warnOnly.CheckPlan(cartPlan); err != nil {
		t.Fatalf("warn policy rejected plan: %v", err)
	}

	blocking := policy.NewGuard([]config.PolicyConfig{{Name: "entry", Rule: "blocked_paths", Value: "lib/main.dart"}})
	err := blocking.CheckPlan(cartPlan)
	var pe *core.PlanningError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *core.PlanningError, got %v", err)
	}
	if pe.Reason != "policy entry: plan touches a blocked path: lib/main.dart" {
		t.Errorf("reason = %q", pe.Reason)
	}
}
