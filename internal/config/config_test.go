package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFileOrEnv(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	assert.True(t, r.BrowserHeadless)
	assert.Equal(t, 40, r.AgentMaxSteps)
}

func TestLoadAppliesFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"browser": {"headless": false, "binaryPath": "/usr/bin/chromium"},
		"agent": {"maxSteps": 20, "model": "file-model"}
	}`), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.False(t, r.BrowserHeadless)
	assert.Equal(t, "/usr/bin/chromium", r.BrowserBinaryPath)
	assert.Equal(t, 20, r.AgentMaxSteps)
	assert.Equal(t, "file-model", r.AgentModel)

	t.Setenv("BROWSER_HEADLESS", "true")
	t.Setenv("BROWSER_BINARY_PATH", "/opt/chrome")

	r2, err := Load(path)
	require.NoError(t, err)
	assert.True(t, r2.BrowserHeadless)
	assert.Equal(t, "/opt/chrome", r2.BrowserBinaryPath)
	assert.Equal(t, 20, r2.AgentMaxSteps)
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, defaults(), r)
}

func TestApplyEnvFallsBackToHttpProxy(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://proxy.local:8080")
	r := defaults()
	applyEnv(&r)
	assert.Equal(t, "http://proxy.local:8080", r.ProxyServer)
}
