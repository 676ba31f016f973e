package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	a := newCLI()
	var names []string
	for _, c := range a.Commands {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"run", "migrate", "backup", "version"}, names)

	backup := a.Command("backup")
	require.NotNil(t, backup)
	var subs []string
	for _, c := range backup.Subcommands {
		subs = append(subs, c.Name)
	}
	assert.ElementsMatch(t, []string{"create", "list"}, subs)
}

func TestMigrateCreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("UM_DATA_DIR", dir)
	t.Setenv("UM_LOG_LEVEL", "error")

	require.NoError(t, newCLI().Run([]string{"umconsole", "migrate"}))
	assert.FileExists(t, filepath.Join(dir, "app.db"))

	require.NoError(t, newCLI().Run([]string{"umconsole", "migrate"}), "migrate is repeatable")
}

func TestBackupRequiresUsername(t *testing.T) {
	t.Setenv("UM_DATA_DIR", t.TempDir())
	err := newCLI().Run([]string{"umconsole", "backup", "create"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username")
}
