// File: cmd/serve.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/answerbook/internal/observability"
	"github.com/xkilldash9x/answerbook/internal/server"
)

// newServeCmd creates the long-running HTTP host. The browser is started
// before the listener opens and stopped after it drains.
func newServeCmd() *cobra.Command {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve answers over HTTP",
		Long: `Serve keeps one browser running and answers GET /answer requests.

Endpoints:
  GET /answer    answer in the configured mode; ?mode= overrides it, ?format=json returns JSON
  GET /healthz   503 until the browser is running
  GET /metrics   Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := configFrom(cmd)
			logger := observability.GetLogger()
			if addr != "" {
				cfg.Server.Addr = addr
			}

			app := newComponents(cfg, logger)
			if err := app.Manager.Start(ctx); err != nil {
				return err
			}
			defer app.Shutdown(logger)

			srv := server.New(cfg.Server, app.Service, logger,
				server.WithMetricsHandler(app.Metrics.Handler()),
				server.WithReadiness(app.Manager.Running))

			logger.Info("Serving answers",
				zap.String("addr", cfg.Server.Addr),
				zap.String("mode", string(app.Service.DefaultMode())))
			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}

	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")
	return serveCmd
}
