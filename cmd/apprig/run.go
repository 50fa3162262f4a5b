package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rigdev/apprig/internal/core"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive session, one instruction per line",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		out := cmd.OutOrStdout()
		a.engine.SetLogFunc(func(_, level, message string) {
			if level == "debug" {
				return
			}
			fmt.Fprintf(out, "  [%s] %s\n", level, message)
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(out, "apprig session on %s (backend %s). Type 'exit' to quit.\n", a.project.Root(), a.client.Backend())
		return session(ctx, cmd.InOrStdin(), out, a.engine.Execute)
	},
}

// session reads instructions from in until EOF, exit or quit. Failed turns
// are reported and the session continues.
func session(ctx context.Context, in io.Reader, out io.Writer,
	execute func(context.Context, string) (*core.Turn, error)) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "apprig> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		turn, err := execute(ctx, line)
		printTurn(out, turn)
		if err != nil && turn == nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
	}
}
