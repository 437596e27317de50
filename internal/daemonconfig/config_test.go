package daemonconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsSelfConsistent(t *testing.T) {
	cfg := Default()

	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.SecretStorePath)
	assert.NotEmpty(t, cfg.ContainerdSocket)
	assert.NotEmpty(t, cfg.IPPoolCIDR)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogJSON)
}

func TestLoadOverridesOnlyNamedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appmgrd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\nlogJson: true\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	// Everything else falls back to Default's values.
	assert.Equal(t, Default().DataDir, cfg.DataDir)
	assert.Equal(t, Default().ContainerdSocket, cfg.ContainerdSocket)
}

func TestLoadMissingFileReturnsWrappedError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemonconfig: reading")
}

func TestLoadMalformedYAMLReturnsWrappedError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: [not a scalar\n"), 0644))

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemonconfig: parsing")
}
