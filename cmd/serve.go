package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sitepdf/internal/server"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job workers",
		Long: `Starts the HTTP API (synchronous crawls, downloads and asynchronous
jobs) together with the worker pool that executes queued jobs. The process
drains in-flight requests on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			cfg := rt.cfg
			if port > 0 {
				cfg.Server.Port = port
			}
			app, err := server.Build(cmd.Context(), cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}
