package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	config, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
}

func TestLoadLayersOverDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
listenAddr: ":9000"
spoolDir: /var/spool/studioprov
wait:
  pollIntervalSeconds: 2
  settleDelaySeconds: 1
`), 0o644))

	config, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":9000", config.ListenAddr)
	assert.Equal(t, "/var/spool/studioprov", config.SpoolDir)
	assert.Equal(t, "/mnt/efs", config.MountRoot, "unset keys keep their defaults")
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, 2, config.Wait.PollIntervalSeconds)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("listenAddr: [broken"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestWaiterConfigConversion(t *testing.T) {
	wait := WaitConfig{
		PollIntervalSeconds:       2,
		ConflictRetryDelaySeconds: 3,
		SettleDelaySeconds:        4,
		MaxWaitSeconds:            600,
	}
	converted := wait.WaiterConfig()
	assert.Equal(t, 2*time.Second, converted.Interval)
	assert.Equal(t, 3*time.Second, converted.ConflictRetryDelay)
	assert.Equal(t, 4*time.Second, converted.SettleDelay)
	assert.Equal(t, 10*time.Minute, converted.MaxWait)
}
