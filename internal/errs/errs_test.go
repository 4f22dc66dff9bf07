package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorUnwrapsToSentinel(t *testing.T) {
	e := New("economy.Spend", "economy", ErrInsufficientFunds)
	assert.True(t, errors.Is(e, ErrInsufficientFunds))
}

func TestErrorMessageIncludesOpAndID(t *testing.T) {
	e := New("orchestrator.Invoke", "orchestrator", ErrToolNotFound).WithID("weather")
	assert.Equal(t, "orchestrator.Invoke [weather]: tool not found", e.Error())
}

func TestErrorMessageWithoutIDOmitsBrackets(t *testing.T) {
	e := New("orchestrator.Invoke", "orchestrator", ErrToolNotFound)
	assert.Equal(t, "orchestrator.Invoke: tool not found", e.Error())
}

func TestErrorMessageFallsBackToKindWhenNoOpOrErr(t *testing.T) {
	e := &Error{Kind: "economy"}
	assert.Equal(t, "economy error", e.Error())
}

func TestIsRetryableMatchesTransientErrors(t *testing.T) {
	assert.True(t, IsRetryable(ErrCircuitOpen))
	assert.True(t, IsRetryable(ErrBackpressure))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.False(t, IsRetryable(ErrInsufficientFunds))
}

func TestIsNotFoundMatchesLookupErrors(t *testing.T) {
	assert.True(t, IsNotFound(ErrToolNotFound))
	assert.True(t, IsNotFound(ErrNodeNotFound))
	assert.True(t, IsNotFound(ErrEdgeNotFound))
	assert.False(t, IsNotFound(ErrCircuitOpen))
}

func TestIsCanonRejectionMatchesSovereigntyAndIntentRejection(t *testing.T) {
	assert.True(t, IsCanonRejection(ErrIntentRejected))
	assert.True(t, IsCanonRejection(ErrSovereigntyVeto))
	assert.False(t, IsCanonRejection(ErrTimeout))
}

func TestIsConfigurationErrorMatchesConfigSentinels(t *testing.T) {
	assert.True(t, IsConfigurationError(ErrInvalidConfiguration))
	assert.True(t, IsConfigurationError(ErrMissingConfiguration))
	assert.False(t, IsConfigurationError(ErrNotInitialized))
}
