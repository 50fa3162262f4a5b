package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/rigdev/apprig/internal/core"
	"github.com/rigdev/apprig/internal/metrics"
	"github.com/rigdev/apprig/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent turns and success statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		window, _ := cmd.Flags().GetDuration("window")
		if window <= 0 {
			window = metrics.DefaultWindow
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := storage.Open(cfg.StoragePath())
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer db.Close()

		turns, err := db.ListTurns(0)
		if err != nil {
			return fmt.Errorf("list turns: %w", err)
		}
		if len(turns) == 0 {
			fmt.Println("No turns found.")
			return nil
		}

		fmt.Fprintf(os.Stdout, "%-36s %-10s %-30s %-8s %s\n",
			"TURN ID", "STATUS", "INSTRUCTION", "ATTEMPTS", "CREATED")
		fmt.Println("--------------------------------------------------------------------------------------------------------")
		for i, t := range turns {
			if limit > 0 && i >= limit {
				break
			}
			status := string(t.Status)
			if t.DryRun {
				status += "*"
			}
			fmt.Fprintf(os.Stdout, "%-36s %-10s %-30s %-8d %s\n",
				t.ID,
				status,
				truncate(t.Instruction, 28),
				len(t.Attempts),
				t.CreatedAt.Local().Format("2006-01-02 15:04"),
			)
		}

		s := metrics.Calculate(turns, time.Now(), window)
		fmt.Printf("\nLast %s: %d turns, %d completed, %d failed, %d dry runs\n",
			window, s.Turns, s.Completed, s.Failed, s.DryRuns)
		fmt.Printf("  success rate     %.1f%%\n", s.SuccessRate)
		fmt.Printf("  simplified       %.1f%%\n", s.SimplifiedRate)
		fmt.Printf("  avg attempts     %.2f\n", s.AvgAttempts)
		fmt.Printf("  repaired         %.1f%%\n", s.RepairRate)
		fmt.Printf("  avg duration     %s\n", s.AvgDuration.Round(time.Millisecond))
		if s.MTTR > 0 {
			fmt.Printf("  recovery time    %s\n", s.MTTR.Round(time.Second))
		}
		fmt.Printf("  lines changed    +%d -%d in %d files\n", s.LinesAdded, s.LinesRemoved, s.FilesChanged)

		if len(s.FailReasons) > 0 {
			reasons := make([]string, 0, len(s.FailReasons))
			for r := range s.FailReasons {
				reasons = append(reasons, string(r))
			}
			sort.Strings(reasons)
			fmt.Println("  failures:")
			for _, r := range reasons {
				fmt.Printf("    %-18s %d\n", r, s.FailReasons[core.FailReason(r)])
			}
		}
		return nil
	},
}
