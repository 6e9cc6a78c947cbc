package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/utafrali/bullseye/internal/config"
	"github.com/utafrali/bullseye/pkg/logger"
)

func main() {
	// Create a context that is canceled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// runtimeEnv is loaded once by the root command before any subcommand runs.
type runtimeEnv struct {
	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	env := &runtimeEnv{}

	root := &cobra.Command{
		Use:           "bullseye",
		Short:         "BullsEye authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				slog.Error("failed to load config", slog.String("error", err.Error()))
				return err
			}
			env.cfg = cfg
			env.log = logger.NewWithOptions(logger.Options{
				Service: cfg.ServiceName,
				Level:   cfg.LogLevel,
				Format:  cfg.LogFormat,
			}, os.Stdout)
			slog.SetDefault(env.log)
			return nil
		},
	}

	root.AddCommand(
		newServeCmd(env),
		newWorkerCmd(env),
		newMigrateCmd(env),
		newCreateAdminCmd(env),
	)
	return root
}
