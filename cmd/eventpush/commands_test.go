package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/eventpush/pkg/auth"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eventpush.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestConfigCommandRedactsSecrets(t *testing.T) {
	path := writeConfig(t, "auth:\n  token:\n    secret: hunter2\n")

	out, _, err := execute(t, "config", "--config", path, "--env-file", "")
	require.NoError(t, err)
	assert.Contains(t, out, "heartbeat_interval")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "******")

	out, _, err = execute(t, "config", "--config", path, "--env-file", "", "--show-secrets")
	require.NoError(t, err)
	assert.Contains(t, out, "hunter2")
}

func TestConfigCommandMissingFile(t *testing.T) {
	_, _, err := execute(t, "config", "--config", filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	path := writeConfig(t, "auth:\n  token:\n    secret: hunter2\n")

	out, stderr, err := execute(t, "token", "--config", path, "--env-file", "",
		"--subject", "ops", "--resource", "db1", "--resource", "db2")
	require.NoError(t, err)
	assert.Contains(t, stderr, "jti=")

	verifier, err := auth.NewVerifier(auth.TokenConfig{Secret: "hunter2", Issuer: auth.DefaultTokenConfig().Issuer})
	require.NoError(t, err)
	claims, err := verifier.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, []string{"db1", "db2"}, claims.Resources)
	assert.False(t, claims.Admin)
}

func TestEnvFile(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9000\"\n")
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("EVENTPUSH_AUTH_TOKEN_SECRET=from-dotenv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("EVENTPUSH_AUTH_TOKEN_SECRET") })

	out, _, err := execute(t, "config", "--config", path, "--env-file", envFile, "--show-secrets")
	require.NoError(t, err)
	assert.Contains(t, out, "from-dotenv")
	assert.Contains(t, out, ":9000")
}

func TestLoadEnvFileMissing(t *testing.T) {
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	assert.NoError(t, loadEnvFile(""))
}
