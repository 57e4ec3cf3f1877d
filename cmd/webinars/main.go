// Command webinars is the directory client, the feed server and the
// maintenance tooling for the canonical feed file.
//
// Logging:
//   - The base logger is built once from the log config section
//   - It is passed to every component; components fall back to slog.Default
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"webinar-directory/internal/app"
	"webinar-directory/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// env carries what every subcommand needs after the root pre-run.
type env struct {
	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:          "webinars",
		Short:        "Browse, like and maintain the webinar directory",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				if err := os.Setenv("CONFIG_PATH", path); err != nil {
					return err
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
				cfg.Log.Level = lvl
			}
			e.cfg = cfg
			e.log = app.NewLogger(cfg.Log)
			return nil
		},
	}
	root.PersistentFlags().String("config", "", "config file (default $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(e),
		newListCmd(e),
		newLikeCmd(e),
		newAddCmd(e),
		newEditCmd(e),
		newDeleteCmd(e),
		newExportCmd(e),
		newDiscardCmd(e),
		newShellCmd(e),
		newValidateLinksCmd(e),
		newCleanupExpiredCmd(e),
		newMarkManualCmd(e),
		newPublishCmd(e),
	)
	return root
}
