// Package cmd implements the vacancies CLI: the HTTP service, one-shot
// scrapes and provider listing.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/config"
	"github.com/difranardo/vacancies-scrapper/internal/logging"
)

// runtimeKey stores the loaded runtime in the command context.
type runtimeKey struct{}

// runtime is what every subcommand receives from the root pre-run hook.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// newRootCmd creates the root command with its persistent flags and
// subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "vacancies",
		Short:         "Scrapes job vacancies from Argentine job boards.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `vacancies drives bumeran, zonajobs and computrabajo through search,
listing, detail extraction and pagination, and exposes the jobs over an HTTP
API or runs a single scrape from the command line.`,

		// Config and logger are loaded once here and handed to subcommands.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, &runtime{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey{}).(*runtime); ok {
				// Syncing stderr fails on some platforms; nothing to do about it.
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newServeCmd(), newScrapeCmd(), newProvidersCmd())
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
