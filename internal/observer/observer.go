// Package observer implements the Maintainer / Observer: it reads the
// action ledger and reduces it to a Signal Summary the Autonomy
// Controller's Planner consults every cycle. Ported from
// original_source's cortex/maintainer/observer.py.
package observer

import (
	"github.com/nouscore/cogcore/internal/envelope"
)

// PressureSource names one contributor to the current pain score.
type PressureSource string

const (
	PressureCost    PressureSource = "COST"
	PressureErrors  PressureSource = "ERRORS"
	PressureLatency PressureSource = "LATENCY"
	PressureMemory  PressureSource = "MEMORY_PRESSURE"
)

// Trend is the short-term direction of operational health.
type Trend string

const (
	Improving Trend = "IMPROVING"
	Stable    Trend = "STABLE"
	Degrading Trend = "DEGRADING"
)

// Summary is the Observer's per-cycle output.
type Summary struct {
	PainScore       float64                `json:"pain_score"`
	PressureSources []PressureSource       `json:"pressure_sources"`
	Trend           Trend                  `json:"trend"`
	Confidence      float64                `json:"confidence"`
	RawMetrics      map[string]interface{} `json:"raw_metrics"`
}

// CollectSignals reduces the last len(records) ledger records (newest
// first, matching the Orchestrator's ledger iteration order) to a
// Summary per spec.md §4.8's scoring rules.
func CollectSignals(records []envelope.LedgerRecord) Summary {
	total := len(records)
	if total == 0 {
		return Summary{
			PainScore:  0.0,
			Trend:      Stable,
			Confidence: 0.5,
			RawMetrics: map[string]interface{}{"source": "empty_ledger"},
		}
	}

	var errorCount int
	var completedCount int
	var latencySum int64
	var totalCost float64

	for _, r := range records {
		if r.Status == envelope.LedgerFailed || r.Status == envelope.LedgerCancelled {
			errorCount++
		}
		if r.Status == envelope.LedgerCompleted && r.DurationMS > 0 {
			completedCount++
			latencySum += r.DurationMS
		}
		totalCost += r.CostSpent
	}

	errorRate := float64(errorCount) / float64(total)
	avgLatency := 0.0
	if completedCount > 0 {
		avgLatency = float64(latencySum) / float64(completedCount)
	}

	var pressures []PressureSource
	pain := 0.0

	if errorRate > 0.1 {
		pain += 0.4
		pressures = append(pressures, PressureErrors)
	}
	if errorRate > 0.3 {
		pain += 0.3
	}
	if avgLatency > 2000 {
		pain += 0.2
		pressures = append(pressures, PressureLatency)
	}
	if totalCost > 5.0 {
		pain += 0.2
		pressures = append(pressures, PressureCost)
	}
	if pain > 1.0 {
		pain = 1.0
	}

	trend := computeTrend(records)

	confidence := 0.5
	if total >= 20 {
		confidence = 0.9
	}

	return Summary{
		PainScore:       pain,
		PressureSources: pressures,
		Trend:           trend,
		Confidence:      confidence,
		RawMetrics: map[string]interface{}{
			"error_rate":  errorRate,
			"avg_latency": avgLatency,
			"total_cost":  totalCost,
			"sample_size": total,
		},
	}
}

// computeTrend compares the 10 most recent records against the prior 90,
// per spec.md §4.8.
func computeTrend(records []envelope.LedgerRecord) Trend {
	recentN := 10
	if recentN > len(records) {
		recentN = len(records)
	}
	recent := records[:recentN]
	older := records[recentN:]

	recentErrors := countErrors(recent)
	olderErrors := countErrors(older)

	recentRate := 0.0
	if len(recent) > 0 {
		recentRate = float64(recentErrors) / float64(len(recent))
	}
	olderRate := 0.0
	if len(older) > 0 {
		olderRate = float64(olderErrors) / float64(len(older))
	}

	if recentRate > olderRate*1.5 && recentRate > 0.1 {
		return Degrading
	}
	if recentRate < olderRate*0.5 && olderRate > 0.1 {
		return Improving
	}
	return Stable
}

func countErrors(records []envelope.LedgerRecord) int {
	n := 0
	for _, r := range records {
		if r.Status == envelope.LedgerFailed || r.Status == envelope.LedgerCancelled {
			n++
		}
	}
	return n
}
