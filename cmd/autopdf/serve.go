package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harunnryd/autopdf/cmd/autopdf/runtime"

	"github.com/harunnryd/autopdf/internal/config"
	"github.com/harunnryd/autopdf/internal/daemon"
	"github.com/harunnryd/autopdf/internal/daemon/components"
	"github.com/harunnryd/autopdf/internal/webhook"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"daemon"},
	Short:   "Run the webhook server",
	Long:    `Starts AutoPDF as a long-running service. GLPI ticket webhooks posted to /webhook are turned into reports; /health reports component status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}
		if err := config.Validate(cfg); err != nil {
			return err
		}

		rt, err := runtime.NewRuntimeBuilder().WithConfig(cfg).Build()
		if err != nil {
			return fmt.Errorf("failed to initialize runtime: %w", err)
		}
		defer rt.Stop()

		daemonMgr, err := daemon.NewDaemon(cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}

		pipelineComp := components.NewPipelineComponent(rt.Store, rt.Index, cfg.Search.Index, rt.Router)
		handler := webhook.NewHandler(rt.Pipeline, cfg.Server.ServiceName)
		httpComp := components.NewHTTPServerComponent(daemonMgr, &cfg.Server, handler)

		daemonMgr.AddComponent(pipelineComp)
		daemonMgr.AddComponent(httpComp)

		slog.Info("AutoPDF daemon starting up...", "port", cfg.Server.Port, "data_dir", cfg.Daemon.DataDir)
		err = daemonMgr.Start(context.Background())
		if err != nil {
			// Cancellation via signal/context is a graceful shutdown case for CLI.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("AutoPDF daemon stopped gracefully")
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("AutoPDF daemon stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
