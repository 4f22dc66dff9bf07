package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nouscore/cogcore/internal/errs"
)

func TestDefaultConfigValues(t *testing.T) {
	c := defaultConfig()
	assert.Equal(t, 1000.0, c.OrchestratorBudget)
	assert.Equal(t, 5000.0, c.OrchestratorReserve)
	assert.Equal(t, 256, c.OrchestratorQueueDepth)
	assert.Equal(t, 0.05, c.IntentFloor)
	assert.Equal(t, 5, c.EPEMaxFiles)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, 60*time.Second, c.AutonomyCycleInterval)
}

func TestNewConfigUsesDefaultsWhenEnvAndOptsAbsent(t *testing.T) {
	c, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), c)
}

func TestLoadFromEnvParsesEachVarType(t *testing.T) {
	t.Setenv("ORCHESTRATOR_BUDGET", "250.5")
	t.Setenv("ECONOMY_MAX_EVENTS", "42")
	t.Setenv("ECONOMY_PATH", "/tmp/econ.json")
	t.Setenv("ORCHESTRATOR_IDEMPOTENCY_TTL", "90s")
	t.Setenv("INTENT_HALF_LIFE_SEC", "120")
	t.Setenv("COGCORE_JWT_SECRET", "topsecret")

	c, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 250.5, c.OrchestratorBudget)
	assert.Equal(t, 42, c.EconomyMaxEvents)
	assert.Equal(t, "/tmp/econ.json", c.EconomyPath)
	assert.Equal(t, 90*time.Second, c.OrchestratorIdempotencyTTL)
	assert.Equal(t, 120*time.Second, c.IntentHalfLife)
	assert.Equal(t, "topsecret", c.JWTSecret)
}

func TestLoadFromEnvRejectsUnparsableNumber(t *testing.T) {
	t.Setenv("ORCHESTRATOR_BUDGET", "not-a-number")
	_, err := NewConfig()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestOptionsOverrideEnvAndDefaults(t *testing.T) {
	t.Setenv("ORCHESTRATOR_BUDGET", "999")
	t.Setenv("COGCORE_HTTP_ADDR", ":9999")

	c, err := NewConfig(
		WithBudget(10, 600),
		WithHTTPAddr(":1234"),
		WithJWTSecret("s3cr3t"),
		WithEPEPolicyPath("custom/policy.yaml"),
	)
	require.NoError(t, err)
	assert.Equal(t, 10.0, c.OrchestratorBudget)
	assert.Equal(t, 600.0, c.OrchestratorReserve)
	assert.Equal(t, ":1234", c.HTTPAddr)
	assert.Equal(t, "s3cr3t", c.JWTSecret)
	assert.Equal(t, "custom/policy.yaml", c.EPEPolicyPath)
}

func TestParseSecondsOrDurationAcceptsBareIntegerOrDurationString(t *testing.T) {
	d, err := parseSecondsOrDuration("45")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)

	d, err = parseSecondsOrDuration("2m")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	_, err = parseSecondsOrDuration("nonsense")
	assert.Error(t, err)
}

func TestValidateRejectsNonPositiveReserve(t *testing.T) {
	_, err := NewConfig(WithBudget(10, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestValidateRejectsIntentFloorOutsideUnitInterval(t *testing.T) {
	c := defaultConfig()
	c.IntentFloor = 1.5
	err := c.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)

	c.IntentFloor = -0.1
	err = c.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestValidateRejectsEPEMaxFilesBelowOne(t *testing.T) {
	c := defaultConfig()
	c.EPEMaxFiles = 0
	err := c.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestValidateRejectsQueueDepthBelowOne(t *testing.T) {
	c := defaultConfig()
	c.OrchestratorQueueDepth = 0
	err := c.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}
