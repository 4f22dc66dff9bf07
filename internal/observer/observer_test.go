package observer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nouscore/cogcore/internal/envelope"
)

func TestCollectSignalsEmptyLedger(t *testing.T) {
	s := CollectSignals(nil)
	assert.Equal(t, 0.0, s.PainScore)
	assert.Equal(t, Stable, s.Trend)
}

// TestCollectSignalsScenarioS2 mirrors S2: 10 records, 4 failed, should
// produce pain_score >= 0.4 with ERRORS among the pressure sources.
func TestCollectSignalsScenarioS2(t *testing.T) {
	var records []envelope.LedgerRecord
	now := time.Now()
	for i := 0; i < 10; i++ {
		status := envelope.LedgerCompleted
		if i < 4 {
			status = envelope.LedgerFailed
		}
		records = append(records, envelope.LedgerRecord{
			Status: status, DurationMS: 100, CostSpent: 0.1, StartedAt: now, FinishedAt: now,
		})
	}

	summary := CollectSignals(records)
	require.GreaterOrEqual(t, summary.PainScore, 0.4)
	assert.Contains(t, summary.PressureSources, PressureErrors)
}

func TestPainScoreCapsAtOne(t *testing.T) {
	var records []envelope.LedgerRecord
	for i := 0; i < 20; i++ {
		records = append(records, envelope.LedgerRecord{
			Status: envelope.LedgerFailed, DurationMS: 5000, CostSpent: 10.0,
		})
	}
	summary := CollectSignals(records)
	assert.LessOrEqual(t, summary.PainScore, 1.0)
}

func TestConfidenceThresholdAtSampleSize20(t *testing.T) {
	small := make([]envelope.LedgerRecord, 5)
	large := make([]envelope.LedgerRecord, 20)
	for i := range small {
		small[i] = envelope.LedgerRecord{Status: envelope.LedgerCompleted}
	}
	for i := range large {
		large[i] = envelope.LedgerRecord{Status: envelope.LedgerCompleted}
	}

	assert.Equal(t, 0.5, CollectSignals(small).Confidence)
	assert.Equal(t, 0.9, CollectSignals(large).Confidence)
}

func TestTrendDegradingWhenRecentErrorsSpike(t *testing.T) {
	var records []envelope.LedgerRecord
	// Oldest-first construction, but CollectSignals expects newest-first
	// (matches the Orchestrator's RecentLedger ordering): the most recent
	// 10 records (index 0..9 here) are all failures, the rest are clean.
	for i := 0; i < 10; i++ {
		records = append(records, envelope.LedgerRecord{Status: envelope.LedgerFailed})
	}
	for i := 0; i < 90; i++ {
		records = append(records, envelope.LedgerRecord{Status: envelope.LedgerCompleted})
	}

	summary := CollectSignals(records)
	assert.Equal(t, Degrading, summary.Trend)
}
