package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/utafrali/bullseye/internal/app"
)

func newMigrateCmd(env *runtimeEnv) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pending, err := app.Migrate(cmd.Context(), env.cfg, env.log, dryRun)
			if err != nil {
				env.log.Error("migration failed", slog.String("error", err.Error()))
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			verb := "applied"
			if dryRun {
				verb = "pending"
			}
			for _, name := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}
