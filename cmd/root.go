// Package cmd implements the sitepdf command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/config"
	"github.com/JakeFAU/sitepdf/internal/logging"
)

// runtimeKeyType keys the loaded runtime in a command context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime is what every subcommand receives from the root command.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// newLogger is the logger factory. Tests replace it to keep output quiet.
var newLogger = logging.New

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "sitepdf",
		Short: "Capture a website as one indexed PDF",
		Long: `sitepdf crawls the same-domain pages of a website depth first, renders
every page as a PDF, merges them into one document with a table of contents,
and can summarize the site with a language model.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Config and logger are loaded once here and handed to subcommands
		// through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, logger: logger}))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, err := runtimeFrom(cmd.Context()); err == nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

func runtimeFrom(ctx context.Context) (*runtime, error) {
	if ctx == nil {
		return nil, errors.New("command context is not set")
	}
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("runtime is not initialized")
	}
	return rt, nil
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "sitepdf:", err)
		os.Exit(1)
	}
}
