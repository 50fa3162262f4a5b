package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rigdev/apprig/internal/logging"
	"github.com/rigdev/apprig/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP instruction channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.Server.Port = port
		}

		a, err := buildApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		log := logging.With("component", "serve")
		if noWatch, _ := cmd.Flags().GetBool("no-watch"); !noWatch {
			w, err := a.project.Watch(300 * time.Millisecond)
			if err != nil {
				return fmt.Errorf("watch project: %w", err)
			}
			w.OnChange(func(rev uint64) {
				log.Info("project changed on disk", "revision", rev)
			})
			if err := w.Start(); err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			defer w.Stop()
		}

		handler := web.NewHandler(cfg, a.engine, a.db, a.project)
		srv := web.NewServer(cfg.Server.Port, handler)

		fmt.Printf("\n  apprig serve running\n")
		fmt.Printf("  ├─ Project : %s\n", a.project.Root())
		fmt.Printf("  ├─ Backend : %s (%s)\n", a.client.Backend(), cfg.AI.Model)
		fmt.Printf("  └─ API     : http://localhost%s/api\n\n", srv.Addr())

		return srv.ListenAndServe(cmd.Context())
	},
}
