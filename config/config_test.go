package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 199, cfg.Report.StatusThreshold)
	assert.False(t, cfg.Report.RequireBody)
	assert.Equal(t, "logTracker", cfg.Report.CreatorName)
	assert.Equal(t, "0.1", cfg.Report.CreatorVersion)
	assert.Equal(t, ".", cfg.Output.Dir)
	assert.Empty(t, cfg.Output.Archive)
	assert.Equal(t, 2*time.Second, cfg.Capture.DrainTimeout)
	assert.Equal(t, ":9222", cfg.Server.Addr)
	assert.False(t, cfg.Trace.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
report:
  status_threshold: 400
  require_body: true
output:
  dir: /tmp/reports
capture:
  drain_timeout: 500ms
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 400, cfg.Report.StatusThreshold)
	assert.True(t, cfg.Report.RequireBody)
	assert.Equal(t, "/tmp/reports", cfg.Output.Dir)
	assert.Equal(t, 500*time.Millisecond, cfg.Capture.DrainTimeout)
	assert.Equal(t, "logTracker", cfg.Report.CreatorName, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte("server:\n  addr: \":1000\"\n"), 0o644))

	t.Setenv("LOGTRACKER_SERVER__ADDR", ":2000")
	t.Setenv("LOGTRACKER_REPORT__STATUS_THRESHOLD", "300")
	t.Setenv("LOGTRACKER_TRACE__ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":2000", cfg.Server.Addr)
	assert.Equal(t, 300, cfg.Report.StatusThreshold)
	assert.True(t, cfg.Trace.Enabled)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOGTRACKER_CAPTURE__DRAIN_TIMEOUT", "-1s")

	_, err := Load("")
	assert.ErrorContains(t, err, "drain_timeout")
}
