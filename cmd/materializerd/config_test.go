package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noria-core/materializer/controller"
)

func TestLoadConfigDefaultsWithNoPath(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Nil(t, cfg.Sharding)
	require.True(t, cfg.PartialEnabled)
}

func TestLoadConfigFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "materializerd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
sharding = 4
partial_enabled = false
frontier_strategy = "readers"
reuse = "relaxed"
replay_barrier_poll_ms = 50
`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Sharding)
	require.Equal(t, 4, *cfg.Sharding)
	require.False(t, cfg.PartialEnabled)
	require.Equal(t, controller.ReuseRelaxed, cfg.Reuse)
}

// TestLoadConfigFromYAML exercises the YAML bootstrap-file path
// (decodeFileConfig's ".yaml" branch) against the same fields the TOML
// path above covers, confirming both formats the teacher depends on
// produce an identical controller.Config.
func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "materializerd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sharding: 4
partial_enabled: false
frontier_strategy: readers
reuse: relaxed
replay_barrier_poll_ms: 50
`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Sharding)
	require.Equal(t, 4, *cfg.Sharding)
	require.False(t, cfg.PartialEnabled)
	require.Equal(t, controller.ReuseRelaxed, cfg.Reuse)
}
