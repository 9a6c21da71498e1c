package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, yamlBody string) string {
	t.Helper()
	path := filepath.Join(dir, "orchestrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))
	return path
}

func TestLoad_OverlaysFileOnDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "pool:\n  max_agents: 42\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 42, cfg.Pool.MaxAgents)
	require.Equal(t, 60, cfg.AutoCheckpoint.IntervalSecs, "unset fields keep their documented default")
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "pool: [this is not a mapping")

	_, err := Load(path)
	require.Error(t, err)
}

func TestWatcher_PublishesReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "pool:\n  max_agents: 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := NewWatcher(ctx, path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("pool:\n  max_agents: 7\n"), 0o644))

	select {
	case cfg := <-w.Changes():
		require.Equal(t, 7, cfg.Pool.MaxAgents)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
