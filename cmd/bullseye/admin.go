package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/utafrali/bullseye/internal/app"
)

func newCreateAdminCmd(env *runtimeEnv) *cobra.Command {
	var acct app.AdminAccount

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a verified admin account or promote an existing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, created, err := app.CreateAdmin(cmd.Context(), env.cfg, env.log, acct)
			if err != nil {
				env.log.Error("create-admin failed", slog.String("error", err.Error()))
				return err
			}
			verb := "promoted"
			if created {
				verb = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s admin %s (%s)\n", verb, u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&acct.Email, "email", "", "admin email address")
	cmd.Flags().StringVar(&acct.Username, "username", "admin", "display name for a new account")
	cmd.Flags().StringVar(&acct.Password, "password", "", "password for a new account")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
