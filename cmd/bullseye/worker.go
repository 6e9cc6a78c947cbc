package main

import (
	"github.com/spf13/cobra"

	"github.com/utafrali/bullseye/internal/app"
)

func newWorkerCmd(env *runtimeEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			env.log.Info("starting email worker")
			return run(cmd, env, app.Components{Worker: true})
		},
	}
}
