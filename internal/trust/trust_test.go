package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetDefaultsToInitialScore(t *testing.T) {
	m := New()
	assert.Equal(t, 0.5, m.Get("unseen_source"))
}

func TestUpdateClampsToRange(t *testing.T) {
	m := New()
	for i := 0; i < 50; i++ {
		m.Update("chronic_helper", Helpful)
	}
	assert.LessOrEqual(t, m.Get("chronic_helper"), 1.0)

	for i := 0; i < 50; i++ {
		m.Update("chronic_harm", Harmful)
	}
	assert.GreaterOrEqual(t, m.Get("chronic_harm"), 0.0)
}

func TestExistentialOutcomeZeroesTrustImmediately(t *testing.T) {
	m := New()
	m.Update("bad_actor", Existential)
	assert.Equal(t, 0.0, m.Get("bad_actor"))
}

func TestVerifyThreshold(t *testing.T) {
	m := New()
	assert.True(t, m.Verify("new_source"), "initial score 0.5 clears the 0.3 threshold")

	m.Update("untrusted", Harmful)
	m.Update("untrusted", Harmful)
	assert.False(t, m.Verify("untrusted"))
}

func TestAdviceWeightZeroBelowThreshold(t *testing.T) {
	m := New()
	m.Update("untrusted", Harmful)
	m.Update("untrusted", Harmful)
	assert.Equal(t, 0.0, m.AdviceWeight("untrusted", 0.9))
}

func TestAdviceWeightScalesByConfidence(t *testing.T) {
	m := New()
	assert.Equal(t, 0.5*0.8, m.AdviceWeight("trusted", 0.8))
}
