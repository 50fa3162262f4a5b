package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rigdev/apprig/internal/adapter/ai"
	"github.com/rigdev/apprig/internal/config"
	"github.com/rigdev/apprig/internal/core"
	"github.com/rigdev/apprig/internal/logging"
	"github.com/rigdev/apprig/internal/policy"
	"github.com/rigdev/apprig/internal/project"
	"github.com/rigdev/apprig/internal/storage"
	"github.com/rigdev/apprig/internal/validator"
)

const defaultConfigPath = "apprig.yaml"

// loadConfig reads --config and configures logging from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	level := logging.Level(cfg.Log.Level)
	if p := cfg.LogPath(); p != "" {
		if err := logging.EnableFileLogging(p, level); err != nil {
			return nil, fmt.Errorf("enable file logging: %w", err)
		}
	} else {
		logging.Configure(level, os.Stderr)
	}
	return cfg, nil
}

// app is the wired pipeline shared by the commands that run turns.
type app struct {
	cfg     *config.Config
	db      *storage.DB
	project *project.Manager
	client  *ai.Client
	engine  *core.Engine
}

// buildApp wires config → project → backend → classifier → planner →
// validator → engine, with turn history in SQLite.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	pm, err := project.Open(cfg.Project, cfg.Pipeline.MaxContextFiles)
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}

	client, err := ai.New(ctx, cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}

	layout := core.LayoutFrom(cfg.Project)
	var classifier core.Classifier = core.NewRuleClassifier(layout)
	if cfg.Pipeline.Classifier == "model" {
		classifier = core.NewModelClassifier(client, layout)
	}
	planner := core.NewPlanner(client, pm, classifier, layout, cfg.AI.MaxTokens)
	v := validator.New(cfg.Project.EntryFile, cfg.Project.ScreensDir)

	db, err := storage.Open(cfg.StoragePath())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	engine := core.NewEngine(cfg, planner, pm, v)
	engine.SetRecorder(db)
	if g := policy.NewGuard(cfg.Policies); g != nil {
		engine.SetGuard(g)
	}

	return &app{cfg: cfg, db: db, project: pm, client: client, engine: engine}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		logging.Warn("close history", "error", err)
	}
	logging.Close()
}

// printTurn writes a human summary of a finished turn.
func printTurn(w io.Writer, turn *core.Turn) {
	if turn == nil {
		return
	}
	status := string(turn.Status)
	if turn.DryRun {
		status += " (dry run)"
	}
	fmt.Fprintf(w, "Turn %s: %s\n", turn.ID, status)
	if turn.Simplified {
		fmt.Fprintln(w, "  fell back to a simplified plan")
	}
	if turn.Status == core.PhaseFailed {
		fmt.Fprintf(w, "  %s: %s\n", turn.FailReason, turn.Error)
	}
	for _, c := range turn.Changes {
		fmt.Fprintf(w, "  %-6s %s (+%d -%d)\n", c.Kind, c.Path, c.Added, c.Removed)
	}
	if turn.DryRun {
		for _, c := range turn.Changes {
			if c.Patch != "" {
				fmt.Fprintln(w)
				fmt.Fprint(w, c.Patch)
			}
		}
	}
}

func instructionArg(args []string) (string, error) {
	instruction := strings.TrimSpace(strings.Join(args, " "))
	if instruction == "" {
		return "", fmt.Errorf("instruction is required")
	}
	return instruction, nil
}

func truncate(s string, max int) string {
	return truncateWithSuffix(s, max, "..")
}

func truncateWithSuffix(s string, max int, suffix string) string {
	if len(s) <= max {
		return s
	}
	if max <= len(suffix) {
		return suffix[:max]
	}
	return s[:max-len(suffix)] + suffix
}
