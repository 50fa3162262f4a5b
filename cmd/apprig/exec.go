package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec <instruction>",
	Short: "Run a single instruction against the project",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instruction, err := instructionArg(args)
		if err != nil {
			return err
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := buildApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		a.engine.SetDryRun(dryRun)

		turn, err := a.engine.Execute(cmd.Context(), instruction)
		printTurn(cmd.OutOrStdout(), turn)
		if err != nil {
			return fmt.Errorf("turn failed: %w", err)
		}
		return nil
	},
}
