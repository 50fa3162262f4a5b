// Package policy applies configured guards to a plan before any model call.
package policy

import (
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/rigdev/apprig/internal/config"
	"github.com/rigdev/apprig/internal/core"
	"github.com/rigdev/apprig/internal/logging"
)

// PolicyViolation represents a failed policy check.
type PolicyViolation struct {
	Name    string `json:"name"`
	Rule    string `json:"rule"`
	Action  string `json:"action"`
	Message string `json:"message"`
}

// Evaluate applies policy checks to a plan's operations.
func Evaluate(policies []config.PolicyConfig, plan *core.TaskPlan) []PolicyViolation {
	violations := make([]PolicyViolation, 0)
	if plan == nil {
		return violations
	}

	for _, p := range policies {
		action := normalizeAction(p.Action)
		rule := strings.TrimSpace(strings.ToLower(p.Rule))
		violate := func(msg string) {
			violations = append(violations, PolicyViolation{Name: p.Name, Rule: p.Rule, Action: action, Message: msg})
		}

		switch rule {
		case "max_file_changes":
			limit, err := strconv.Atoi(strings.TrimSpace(p.Value))
			if err != nil || limit < 0 {
				continue
			}
			if len(plan.Operations) > limit {
				violate(fmt.Sprintf("plan touches %d files, limit is %d", len(plan.Operations), limit))
			}

		case "blocked_paths":
			patterns := splitPolicyValue(p.Value)
			if len(patterns) == 0 {
				continue
			}
			for _, op := range plan.Operations {
				if pathMatchesAnyPattern(op.Path, patterns) {
					violate("plan touches a blocked path: " + op.Path)
					break
				}
			}

		case "no_delete":
			for _, op := range plan.Operations {
				if op.Kind == core.OpDelete {
					violate("plan deletes " + op.Path)
					break
				}
			}
		}
	}

	return violations
}

// Guard enforces policies on plans. Warnings are logged; the first
// blocking violation rejects the plan.
type Guard struct {
	policies []config.PolicyConfig
	log      *slog.Logger
}

var _ core.PlanGuard = (*Guard)(nil)

// NewGuard returns a Guard for policies. It returns nil when there is
// nothing to enforce.
func NewGuard(policies []config.PolicyConfig) *Guard {
	if len(policies) == 0 {
		return nil
	}
	return &Guard{policies: policies, log: logging.With("component", "policy")}
}

// CheckPlan returns a *core.PlanningError for a blocking violation.
func (g *Guard) CheckPlan(plan *core.TaskPlan) error {
	if g == nil {
		return nil
	}
	for _, v := range Evaluate(g.policies, plan) {
		if v.Action == "warn" {
			g.log.Warn("policy violation", "policy", v.Name, "rule", v.Rule, "message", v.Message)
			continue
		}
		return &core.PlanningError{
			Instruction: plan.Instruction,
			Reason:      fmt.Sprintf("policy %s: %s", v.Name, v.Message),
		}
	}
	return nil
}

func normalizeAction(action string) string {
	v := strings.TrimSpace(strings.ToLower(action))
	if v == "warn" {
		return "warn"
	}
	return "block"
}

func splitPolicyValue(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		norm := strings.TrimSpace(p)
		if norm == "" {
			continue
		}
		out = append(out, strings.ReplaceAll(norm, `\`, "/"))
	}
	return out
}

// pathMatchesAnyPattern matches a plan path against doublestar patterns.
// A pattern ending in "/" blocks the whole directory.
func pathMatchesAnyPattern(p string, patterns []string) bool {
	p = path.Clean(p)
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, "/") {
			if strings.HasPrefix(p+"/", pattern) {
				return true
			}
			continue
		}
		if p == pattern {
			return true
		}
		if ok, err := doublestar.Match(pattern, p); err == nil && ok {
			return true
		}
	}
	return false
}
