package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammadijoo/WalkingPG_Go/pkg/footstep"
	"github.com/mohammadijoo/WalkingPG_Go/pkg/generator"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "walkgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsMatchGenerator(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvOutDir, "")
	cfg, err := Load("")
	require.NoError(t, err)

	g, err := cfg.Generator()
	require.NoError(t, err)
	assert.Equal(t, generator.DefaultConfig(), g)
}

func TestLoad_RepositoryExample(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvOutDir, "")
	cfg, err := Load(filepath.Join("..", "..", "configs", "walkgen.yaml"))
	require.NoError(t, err)

	g, err := cfg.Generator()
	require.NoError(t, err)
	assert.Equal(t, generator.DefaultConfig(), g)
	assert.Equal(t, 0.2, cfg.Simulation.Velocity.X)
}

func TestLoad_OverridesAndEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvOutDir, "/tmp/walk")
	path := writeFile(t, `
horizon:
  n: 24
  nf: 3
robot:
  support: right
solver:
  strategy: coupled
  cpu_time: 50ms
simulation:
  cycles: 10
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Simulation.LogLevel)
	assert.Equal(t, "/tmp/walk", cfg.Simulation.OutDir)
	assert.Equal(t, 10, cfg.Simulation.Cycles)

	g, err := cfg.Generator()
	require.NoError(t, err)
	assert.Equal(t, 24, g.N)
	assert.Equal(t, 3, g.NF)
	assert.Equal(t, 0.1, g.T, "unset keys keep defaults")
	assert.Equal(t, footstep.Right, g.Support)
	assert.Equal(t, generator.Coupled, g.Strategy)
	assert.Equal(t, 50*time.Millisecond, g.Limits.CPUTime)
}

func TestGenerator_RejectsBadSections(t *testing.T) {
	for name, body := range map[string]string{
		"support":  "robot:\n  support: middle\n",
		"strategy": "solver:\n  strategy: sideways\n",
		"vertex":   "robot:\n  reach: [[0.1, 0.2, 0.3]]\n",
		"horizon":  "horizon:\n  n: 40\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, body))
			require.NoError(t, err)
			_, err = cfg.Generator()
			assert.ErrorIs(t, err, generator.ErrConfig)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "horizon: [1, 2"))
	assert.Error(t, err)
}
