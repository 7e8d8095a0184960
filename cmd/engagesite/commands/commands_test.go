package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/engagesite/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, debug = "", false
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "engagesite version "+Version)
}

func TestValidateDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "engagesite.yaml", "title: Engage\n")

	out, err := run(t, "validate", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ config")
	assert.Contains(t, out, "4 showcase panels")
	assert.Contains(t, out, config.DefaultCMSURL)
}

func TestValidateContentOverlay(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "engagesite.yaml", "title: Engage\n")
	writeFile(t, dir, "solutions.yaml", `panels:
  - title: One
    description: First
  - title: Two
    description: Second
`)

	out, err := run(t, "validate", "--config", cfg, "--content", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 showcase panels")
}

func TestValidateRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "engagesite.yaml", "cms:\n  cache:\n    strategy: sometimes\n")

	_, err := run(t, "validate", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cms.cache.strategy")
}

func TestValidateRejectsBadContent(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "engagesite.yaml", "title: Engage\n")
	writeFile(t, dir, "solutions.yaml", "panels: []\n")

	_, err := run(t, "validate", "--config", cfg, "--content", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid content")
}

func TestServeFlagsOverrideConfig(t *testing.T) {
	cmd := newServeCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--port", "9001", "--watch"}))

	cfg := config.DefaultConfig()
	cfg.Server.Host = "0.0.0.0"
	applyServeFlags(cmd, cfg, serveOptions{port: 9001, watch: true})

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.True(t, cfg.Content.Watch)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset flags keep config values")
}
