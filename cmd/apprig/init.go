package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rigdev/apprig/internal/config"
	"github.com/rigdev/apprig/internal/project"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Scaffold a Flutter project layout and an apprig.yaml template",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", dir, err)
		}

		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = filepath.Base(abs)
		}
		backend, _ := cmd.Flags().GetString("backend")

		var content string
		switch backend {
		case "local":
			content = configTemplate(name, localAITemplate)
		case "hosted":
			content = configTemplate(name, hostedAITemplate)
		default:
			return fmt.Errorf("unknown backend %q (local|hosted)", backend)
		}

		cfgPath := filepath.Join(abs, defaultConfigPath)
		if _, err := os.Stat(cfgPath); err == nil {
			fmt.Printf("%s already exists, leaving it unchanged\n", defaultConfigPath)
		} else {
			if err := os.MkdirAll(abs, 0755); err != nil {
				return fmt.Errorf("create %s: %w", abs, err)
			}
			if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
				return fmt.Errorf("write %s: %w", defaultConfigPath, err)
			}
			fmt.Printf("Created %s (backend: %s)\n", defaultConfigPath, backend)
		}

		cfg := config.Config{Project: config.ProjectConfig{Name: name, Root: abs}}
		config.ApplyDefaults(&cfg)
		created, err := project.Scaffold(cfg.Project, name)
		if err != nil {
			return fmt.Errorf("scaffold: %w", err)
		}
		for _, p := range created {
			fmt.Printf("Created %s\n", p)
		}

		fmt.Println("Edit the config and run 'apprig doctor' to check the backend.")
		return nil
	},
}

func configTemplate(name, ai string) string {
	return strings.NewReplacer("{{NAME}}", name, "{{AI}}", ai).Replace(`project:
  name: "{{NAME}}"
  root: .
  entry_file: lib/main.dart
  screens_dir: lib/screens
  state_dir: lib/providers
  services_dir: lib/services
  models_dir: lib/models
  include:
    - "lib/**/*.dart"
    - pubspec.yaml

{{AI}}
pipeline:
  max_retries: 3
  max_context_files: 20
  classifier: rules
  history_turns: 3

storage:
  path: .apprig/apprig.db

log:
  level: info
  file: .apprig/apprig.log

server:
  port: 8080

# policies:
#   - name: keep-pubspec
#     rule: blocked_paths    # max_file_changes|blocked_paths|no_delete
#     value: pubspec.yaml
#     action: block          # block|warn
`)
}

const localAITemplate = `ai:
  backend_kind: local
  provider: ollama
  model: qwen2.5-coder:7b
  endpoint: http://localhost:11434
  timeout: 120s
  max_tokens: 2048
  temperature: 0.7
`

const hostedAITemplate = `ai:
  backend_kind: hosted
  provider: anthropic
  model: claude-sonnet-4-5
  api_key: ${ANTHROPIC_API_KEY}
  timeout: 60s
  max_tokens: 4096
  temperature: 0.7
`
