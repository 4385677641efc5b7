package commands_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/xjectro/actionkit/internal/config"
)

// findSubcommand finds a subcommand by name within a cobra command.
func findSubcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

const testCatalog = `actions:
  - name: list-users
    endpoint: /users
    method: GET
    tags: users
  - name: create-user
    endpoint: /users
    method: POST
    tags: [users, stats]
  - name: upload-avatar
    endpoint: /avatars
    method: POST
  - name: get-user
    endpoint: /users/missing
    method: GET
    cache:
      ttl: 1m
      tags: users
`

// setupViper resets the global viper instance to defaults plus values and
// restores it when the test ends.
func setupViper(t *testing.T, values map[string]any) {
	t.Helper()

	viper.Reset()
	config.SetDefaults(viper.GetViper())

	for key, value := range values {
		viper.Set(key, value)
	}

	t.Cleanup(viper.Reset)
}

func writeCatalog(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "actions.yml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))

	return path
}

// execute runs cmd with args and returns stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer

	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return stdout.String(), stderr.String(), err
}
