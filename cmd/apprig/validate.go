package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rigdev/apprig/internal/config"
	"github.com/rigdev/apprig/internal/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file.dart...]",
	Short: "Validate the configuration, and optionally Dart files",
	Long: "Without arguments, validates the configuration file. With Dart files, also runs " +
		"the syntactic checks and reports what the repair pass would fix. Files are never modified.",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Config validation failed: %v\n", err)
			return err
		}
		fmt.Printf("Config validation passed: %s\n", configPath)

		if len(args) == 0 {
			return nil
		}

		v := validator.New(cfg.Project.EntryFile, cfg.Project.ScreensDir)
		failed := 0
		for _, arg := range args {
			data, err := os.ReadFile(arg)
			if err != nil {
				return fmt.Errorf("read %s: %w", arg, err)
			}
			rel := projectRel(cfg.Project.Root, arg)

			res := v.ValidateAndFixDartCode(rel, string(data))
			switch {
			case !res.OK:
				failed++
				fmt.Printf("FAIL %s\n", arg)
				for _, d := range res.Errors {
					fmt.Printf("  %d:%d %s: %s\n", d.Line, d.Column, d.Code, d.Message)
				}
			case res.RepairedContent != nil:
				fmt.Printf("FIX  %s (valid after repair)\n", arg)
			default:
				fmt.Printf("OK   %s\n", arg)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d file(s) failed validation", failed, len(args))
		}
		return nil
	},
}

// projectRel maps a file argument to its slash path within root, so the
// entry and screen rules apply. Paths outside root are used as given.
func projectRel(root, file string) string {
	absFile, err := filepath.Abs(file)
	if err != nil {
		return filepath.ToSlash(file)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return filepath.ToSlash(file)
	}
	rel, err := filepath.Rel(absRoot, absFile)
	if err != nil || rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}
