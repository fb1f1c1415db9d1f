package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"filter", "enrich", "fetch", "runs"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "prospect", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestFilterCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"output", "min-employees", "max-employees", "margin", "xlsx"} {
		flag := filterCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "filter should have --%s flag", flagName)
	}

	flag := filterCmd.Flags().Lookup("min-employees")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestEnrichCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"output", "variant", "xlsx"} {
		flag := enrichCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "enrich should have --%s flag", flagName)
	}
}

func TestFetchCommand_Flags(t *testing.T) {
	flag := fetchCmd.Flags().Lookup("force")
	require.NotNil(t, flag, "fetch should have --force flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	cmds := runsCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"list", "show", "stats"}
	for _, name := range expected {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

func TestRunsListCommand_Flags(t *testing.T) {
	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "runs list should have --limit flag")
	assert.Equal(t, "50", flag.DefValue)

	for _, flagName := range []string{"command", "area"} {
		assert.NotNil(t, runsListCmd.Flags().Lookup(flagName), "runs list should have --%s flag", flagName)
	}
}
