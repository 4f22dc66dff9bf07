package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nouscore/cogcore/internal/config"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.NewConfig(
		config.WithBudget(100, 1000),
		config.WithEPEPolicyPath(""),
	)
	require.NoError(t, err)

	cfg.EconomyPath = filepath.Join(dir, "economy.json")
	cfg.AutonomyStatePath = filepath.Join(dir, "autonomy_state.json")
	cfg.AutonomyExplainPath = filepath.Join(dir, "explain.jsonl")
	cfg.OrchestratorIdempotencyDB = filepath.Join(dir, "idempotency.bbolt")
	cfg.AutonomyCycleInterval = 10 * time.Millisecond
	return cfg
}

func TestNewWiresEveryComponentAndClosesCleanly(t *testing.T) {
	cfg := newTestConfig(t)

	core, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(core.Close)

	assert.NotNil(t, core.Intents)
	assert.NotNil(t, core.Trust)
	assert.NotNil(t, core.Economy)
	assert.NotNil(t, core.CML)
	assert.NotNil(t, core.Orchestrator)
	assert.NotNil(t, core.Evolution)
	assert.NotNil(t, core.Controller)
	assert.NotNil(t, core.API)

	snap := core.Economy.Snapshot()
	assert.Equal(t, 100.0, snap.Budget)
}

func TestRunAutonomyLoopStopsWhenContextCancelled(t *testing.T) {
	cfg := newTestConfig(t)
	core, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(core.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		core.RunAutonomyLoop(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunAutonomyLoop did not return after context cancellation")
	}
}
