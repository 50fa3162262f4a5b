package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <instruction>",
	Short: "Print the file operations an instruction would produce",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instruction, err := instructionArg(args)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := buildApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		plan, err := a.engine.Plan(cmd.Context(), instruction)
		if err != nil {
			return err
		}

		n := plan.Needs
		fmt.Printf("Scope: %s  Subject: %s\n", n.Scope, n.Subject)
		fmt.Printf("Needs: route=%t shared_state=%t network=%t model=%t\n",
			n.NeedsRoute, n.NeedsSharedState, n.NeedsNetwork, n.NeedsModel)
		fmt.Printf("Base revision: %d\n\n", plan.BaseRevision)
		for i, op := range plan.Operations {
			aux := ""
			if op.Auxiliary {
				aux = " (auxiliary)"
			}
			fmt.Printf("%d. %-6s %s%s\n", i+1, op.Kind, op.Path, aux)
			if op.Rationale != "" {
				fmt.Printf("   %s\n", op.Rationale)
			}
		}
		return nil
	},
}
