package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rigdev/apprig/internal/core"
	"github.com/rigdev/apprig/internal/storage"
)

var logsCmd = &cobra.Command{
	Use:   "logs <turn-id>",
	Short: "Show a turn's attempts and progress log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		turnID := args[0]
		follow, _ := cmd.Flags().GetBool("follow")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := storage.Open(cfg.StoragePath())
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer db.Close()

		turn, err := db.GetTurn(turnID)
		if err != nil {
			return fmt.Errorf("get turn: %w", err)
		}
		if turn == nil {
			return fmt.Errorf("turn %q not found", turnID)
		}

		fmt.Fprintf(os.Stdout, "Turn: %s\n", turn.ID)
		fmt.Fprintf(os.Stdout, "Instruction: %s\n", turn.Instruction)
		fmt.Fprintf(os.Stdout, "Status: %s\n", turn.Status)
		if turn.FailReason != "" {
			fmt.Fprintf(os.Stdout, "Fail Reason: %s (%s)\n", turn.FailReason, turn.Error)
		}
		fmt.Fprintf(os.Stdout, "Created: %s\n", turn.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		if turn.CompletedAt != nil {
			fmt.Fprintf(os.Stdout, "Completed: %s\n", turn.CompletedAt.Local().Format("2006-01-02 15:04:05"))
		}
		if turn.Plan != nil {
			fmt.Fprintf(os.Stdout, "Plan: %s\n", turn.Plan.Summary())
		}
		fmt.Println()

		for _, a := range turn.Attempts {
			fmt.Fprintf(os.Stdout, "--- Attempt #%d %s ---\n", a.Number, a.Path)
			fmt.Fprintf(os.Stdout, "  Status: %s (%s)\n", a.Status, a.Duration.Round(time.Millisecond))
			if a.Simplified {
				fmt.Println("  Simplified plan")
			}
			if a.Repaired {
				fmt.Println("  Repaired by the fix pass")
			}
			for _, d := range a.Diagnostics {
				fmt.Fprintf(os.Stdout, "  %d:%d %s: %s\n", d.Line, d.Column, d.Code, d.Message)
			}
			if a.Error != "" {
				fmt.Fprintf(os.Stdout, "  Error: %s\n", truncateWithSuffix(a.Error, 200, "..."))
			}
		}

		var lastID int64
		printLogs := func() error {
			entries, err := db.GetLogsSince(turnID, lastID)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(os.Stdout, "%s [%-5s] %s\n", e.Timestamp.Local().Format("15:04:05"), e.Level, e.Message)
				lastID = e.ID
			}
			return nil
		}

		fmt.Println("\n--- Log ---")
		if err := printLogs(); err != nil {
			return fmt.Errorf("get logs: %w", err)
		}
		if !follow {
			return nil
		}

		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case <-ticker.C:
				if err := printLogs(); err != nil {
					return fmt.Errorf("get logs: %w", err)
				}
				t, err := db.GetTurn(turnID)
				if err == nil && t != nil && (t.Status == core.PhaseCompleted || t.Status == core.PhaseFailed) {
					return printLogs()
				}
			}
		}
	},
}
