package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, int64(0), cfg.Solver.Seed)
	assert.Equal(t, 300*time.Second, cfg.Solver.TimeLimit)
	assert.Equal(t, 1, cfg.Solver.Workers)
	assert.True(t, cfg.GA.Enabled)
	assert.Equal(t, 30, cfg.GA.PopulationSize)
	assert.Equal(t, 20, cfg.GA.Generations)
	assert.Empty(t, cfg.Redis.ProgressChannel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCHED_SEED", "1234")
	t.Setenv("SCHED_TIME_LIMIT_SECONDS", "45")
	t.Setenv("SCHED_WORKERS", "8")
	t.Setenv("SCHED_LOG_LEVEL", "debug")
	t.Setenv("SCHED_GA_ENABLED", "false")
	t.Setenv("SCHED_PROGRESS_CHANNEL", "scheduler:progress")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(1234), cfg.Solver.Seed)
	assert.Equal(t, 45*time.Second, cfg.Solver.TimeLimit)
	assert.Equal(t, 8, cfg.Solver.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.GA.Enabled)
	assert.Equal(t, "scheduler:progress", cfg.Redis.ProgressChannel)
}
