package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// validProviders maps each backend kind to the providers it accepts.
var validProviders = map[string]map[string]bool{
	"local":  {"ollama": true},
	"hosted": {"openai": true, "anthropic": true, "gemini": true},
}

var validPolicyRules = map[string]bool{
	"max_file_changes": true,
	"blocked_paths":    true,
	"no_delete":        true,
}

var validClassifiers = map[string]bool{
	"rules": true,
	"model": true,
}

// Validate checks the Config for completeness and correctness.
// All problems are reported together, each prefixed with "config: ".
func Validate(cfg *Config) error {
	var errs []string

	// --- Required fields ---
	if cfg.AI.Model == "" {
		errs = append(errs, "config: ai.model is required")
	}

	// --- Backend selection ---
	providers, ok := validProviders[cfg.AI.BackendKind]
	if !ok {
		errs = append(errs, fmt.Sprintf(
			"config: ai.backend_kind '%s' is invalid; must be one of: local, hosted",
			cfg.AI.BackendKind))
	} else if !providers[cfg.AI.Provider] {
		errs = append(errs, fmt.Sprintf(
			"config: ai.provider '%s' is not supported for backend_kind '%s'",
			cfg.AI.Provider, cfg.AI.BackendKind))
	}
	if cfg.AI.BackendKind == "hosted" && cfg.AI.APIKey == "" {
		errs = append(errs, "config: ai.api_key is required for hosted backends")
	}
	if cfg.AI.Timeout < 0 {
		errs = append(errs, "config: ai.timeout must not be negative")
	}
	if cfg.AI.MaxTokens < 0 {
		errs = append(errs, fmt.Sprintf("config: ai.max_tokens must be positive, got %d", cfg.AI.MaxTokens))
	}
	if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("config: ai.temperature must be between 0 and 2, got %g", cfg.AI.Temperature))
	}

	// --- Pipeline ---
	if cfg.Pipeline.MaxRetries != nil && (*cfg.Pipeline.MaxRetries < 0 || *cfg.Pipeline.MaxRetries > 10) {
		errs = append(errs, fmt.Sprintf(
			"config: pipeline.max_retries must be between 0 and 10, got %d",
			*cfg.Pipeline.MaxRetries))
	}
	if cfg.Pipeline.MaxContextFiles < 1 {
		errs = append(errs, fmt.Sprintf(
			"config: pipeline.max_context_files must be at least 1, got %d",
			cfg.Pipeline.MaxContextFiles))
	}
	if !validClassifiers[cfg.Pipeline.Classifier] {
		errs = append(errs, fmt.Sprintf(
			"config: pipeline.classifier '%s' is invalid; must be one of: rules, model",
			cfg.Pipeline.Classifier))
	}

	// --- Project layout ---
	errs = append(errs, validateLayout(&cfg.Project)...)

	for i, p := range cfg.Policies {
		if !validPolicyRules[strings.ToLower(strings.TrimSpace(p.Rule))] {
			errs = append(errs, fmt.Sprintf("config: policies[%d].rule '%s' is invalid; must be one of: max_file_changes, blocked_paths, no_delete", i, p.Rule))
		}
		if a := strings.ToLower(strings.TrimSpace(p.Action)); a != "" && a != "block" && a != "warn" {
			errs = append(errs, fmt.Sprintf("config: policies[%d].action '%s' is invalid; must be block or warn", i, p.Action))
		}
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("config: server.port out of range: %d", cfg.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// validateLayout checks that every layout path is relative and stays inside
// the project root, and that include patterns are well formed.
func validateLayout(p *ProjectConfig) []string {
	var errs []string
	fields := []struct {
		name, value string
	}{
		{"entry_file", p.EntryFile},
		{"screens_dir", p.ScreensDir},
		{"state_dir", p.StateDir},
		{"services_dir", p.ServicesDir},
		{"models_dir", p.ModelsDir},
	}
	for _, f := range fields {
		if f.value == "" {
			errs = append(errs, fmt.Sprintf("config: project.%s is required", f.name))
			continue
		}
		if filepath.IsAbs(f.value) || strings.HasPrefix(filepath.Clean(f.value), "..") {
			errs = append(errs, fmt.Sprintf("config: project.%s must be relative to the project root, got %q", f.name, f.value))
		}
	}
	if p.EntryFile != "" && !strings.HasSuffix(p.EntryFile, ".dart") {
		errs = append(errs, fmt.Sprintf("config: project.entry_file must be a .dart file, got %q", p.EntryFile))
	}

	for i, pattern := range p.Include {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Sprintf("config: project.include[%d] is not a valid pattern: %q", i, pattern))
		}
	}
	if p.ContextFileLimit < 0 {
		errs = append(errs, "config: project.context_file_limit must not be negative")
	}
	return errs
}
