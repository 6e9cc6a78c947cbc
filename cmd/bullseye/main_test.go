package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"serve", "worker", "migrate", "create-admin"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	serve, _, _ := root.Find([]string{"serve"})
	assert.NotNil(t, serve.Flags().Lookup("with-worker"))
	migrate, _, _ := root.Find([]string{"migrate"})
	assert.NotNil(t, migrate.Flags().Lookup("dry-run"))
	createAdmin, _, _ := root.Find([]string{"create-admin"})
	for _, flag := range []string{"email", "username", "password"} {
		assert.NotNil(t, createAdmin.Flags().Lookup(flag), flag)
	}
}
