package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Server.Port = port
		}

		a, err := app.New(ctx, cfg, zap.L())
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		return a.Serve(ctx)
	},
}

func init() {
	serveCmd.Flags().String("port", "", "listen port (overrides server.port)")
}
