package stackgan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1024, cfg.EmbeddingDim)
	assert.Equal(t, 128, cfg.ConditionDim)
	assert.Equal(t, 4, cfg.ResidualBlocks)
	assert.Equal(t, 16, jointResolution)
}

func TestLoadConfig(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("embedding_dim: 32\nbatch_size: 2\nkl_coefficient: 0.5\nseed: 9\n")
	require.NoError(t, os.WriteFile(fname, data, 0o644))

	cfg, err := LoadConfig(fname)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.EmbeddingDim)
	assert.Equal(t, 2, cfg.BatchSize)
	assert.Equal(t, 0.5, cfg.KLCoefficient)
	assert.Equal(t, int64(9), cfg.Seed)
	assert.Equal(t, DefaultConfig().NoiseDim, cfg.NoiseDim, "missing keys keep defaults")
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	odd := filepath.Join(dir, "odd.yaml")
	require.NoError(t, os.WriteFile(odd, []byte("stage1_filters: 5\n"), 0o644))
	_, err = LoadConfig(odd)
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("embedding_dim: [1, 2\n"), 0o644))
	_, err = LoadConfig(broken)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cases := []func(cfg *Config){
		func(cfg *Config) { cfg.EmbeddingDim = 0 },
		func(cfg *Config) { cfg.ConditionDim = -1 },
		func(cfg *Config) { cfg.Stage2Filters = 7 },
		func(cfg *Config) { cfg.BatchSize = 0 },
		func(cfg *Config) { cfg.NormEpsilon = 0 },
	}
	for i, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), "case #%d", i)
	}
}
