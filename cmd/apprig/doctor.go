package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rigdev/apprig/internal/adapter/ai"
	"github.com/rigdev/apprig/internal/config"
	"github.com/rigdev/apprig/internal/core"
	"github.com/rigdev/apprig/internal/storage"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check environment, configuration and backend health",
	RunE: func(cmd *cobra.Command, args []string) error {
		allOK := true
		skipBackend, _ := cmd.Flags().GetBool("skip-backend")

		fmt.Println("=== apprig doctor ===")
		fmt.Println()

		// flutter is optional; generated code is only checked syntactically.
		if checkCommand("flutter", "--version") {
			fmt.Println("[OK] flutter is installed")
		} else {
			fmt.Println("[INFO] flutter not found in PATH (not required)")
		}

		configPath, _ := cmd.Flags().GetString("config")
		if _, err := os.Stat(configPath); err != nil {
			fmt.Printf("[FAIL] config file not found: %s (run 'apprig init' to create one)\n", configPath)
			fmt.Println()
			fmt.Println("Some checks failed. Please fix the issues above.")
			return nil
		}
		fmt.Printf("[OK] config file found: %s\n", configPath)

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			fmt.Printf("[FAIL] config: %v\n", err)
			allOK = false
		} else {
			fmt.Println("[OK] config is valid")
			if !checkProject(cfg) {
				allOK = false
			}
			if !skipBackend && !checkBackend(cmd.Context(), cfg) {
				allOK = false
			}
		}

		fmt.Println()
		if allOK {
			fmt.Println("All checks passed!")
		} else {
			fmt.Println("Some checks failed. Please fix the issues above.")
		}
		return nil
	},
}

func checkProject(cfg *config.Config) bool {
	if info, err := os.Stat(cfg.Project.Root); err != nil || !info.IsDir() {
		fmt.Printf("[FAIL] project root is not a directory: %s\n", cfg.Project.Root)
		return false
	}
	fmt.Printf("[OK] project root: %s\n", cfg.Project.Root)

	entry := filepath.Join(cfg.Project.Root, filepath.FromSlash(cfg.Project.EntryFile))
	if _, err := os.Stat(entry); err != nil {
		fmt.Printf("[WARN] entry file missing: %s (the first route will create it)\n", cfg.Project.EntryFile)
	} else {
		fmt.Printf("[OK] entry file: %s\n", cfg.Project.EntryFile)
	}

	dbPath := cfg.StoragePath()
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Printf("[INFO] history not found: %s (created on first turn)\n", dbPath)
		return true
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		fmt.Printf("[FAIL] history database: %v\n", err)
		return false
	}
	defer db.Close()
	counts, err := db.CountByStatus()
	if err != nil {
		fmt.Printf("[FAIL] history database: %v\n", err)
		return false
	}
	fmt.Printf("[OK] history: %d completed, %d failed turns\n", counts[core.PhaseCompleted], counts[core.PhaseFailed])
	return true
}

func checkBackend(ctx context.Context, cfg *config.Config) bool {
	client, err := ai.New(ctx, cfg.AI)
	if err != nil {
		fmt.Printf("[FAIL] model backend: %v\n", err)
		return false
	}
	if err := client.Ping(ctx); err != nil {
		fmt.Printf("[FAIL] %s backend unreachable: %v\n", client.Backend(), err)
		return false
	}
	fmt.Printf("[OK] %s backend reachable, model %s available\n", client.Backend(), cfg.AI.Model)
	return true
}

// checkCommand checks if a command is available in PATH.
func checkCommand(name string, args ...string) bool {
	cmd := exec.Command(name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}
