package api

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/nouscore/cogcore/internal/economy"
)

func TestMetricsObserveSetsGaugesFromSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Observe(economy.Snapshot{
		State:       economy.State{Budget: 42.5},
		NetPosition: 10.0,
		ROIRatio:    2.0,
	})
	m.SetHarmCounter(3)
	m.SetPainScore(0.6)

	assert.Equal(t, 42.5, testutil.ToFloat64(m.budget))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.netPosition))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.roiRatio))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.harmCounter))
	assert.Equal(t, 0.6, testutil.ToFloat64(m.painScore))
}
