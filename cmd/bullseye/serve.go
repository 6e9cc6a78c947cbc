package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/utafrali/bullseye/internal/app"
)

func newServeCmd(env *runtimeEnv) *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API",
		Long: `Serve the REST API. With --with-worker (or EMAIL_WORKER_IN_PROCESS=true)
queued emails are also delivered from this process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := env.cfg
			if withWorker {
				cfg.RunWorkerInServe = true
			}
			env.log.Info("starting bullseye",
				slog.String("environment", cfg.Environment),
				slog.Int("http_port", cfg.HTTPPort),
				slog.String("email_dispatch", cfg.EmailDispatchMode),
			)
			return run(cmd, env, app.Components{HTTP: true})
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the email delivery worker")
	return cmd
}

// run builds the application and blocks until it stops.
func run(cmd *cobra.Command, env *runtimeEnv, comps app.Components) error {
	application, err := app.NewApp(env.cfg, env.log, comps)
	if err != nil {
		env.log.Error("failed to initialize application", slog.String("error", err.Error()))
		return err
	}
	if err := application.Run(cmd.Context()); err != nil {
		env.log.Error("application error", slog.String("error", err.Error()))
		return err
	}
	env.log.Info("bullseye stopped")
	return nil
}
