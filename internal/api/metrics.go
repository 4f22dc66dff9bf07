package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nouscore/cogcore/internal/economy"
)

// Metrics exposes the Economy's vitals as Prometheus gauges under
// GET /metrics, per spec.md §6's external surface.
type Metrics struct {
	budget      prometheus.Gauge
	netPosition prometheus.Gauge
	roiRatio    prometheus.Gauge
	harmCounter prometheus.Gauge
	painScore   prometheus.Gauge
}

// NewMetrics registers the cogcore gauge set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		budget: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cogcore", Subsystem: "economy", Name: "budget",
			Help: "Current spendable budget.",
		}),
		netPosition: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cogcore", Subsystem: "economy", Name: "net_position",
			Help: "total_earnings minus total_spent.",
		}),
		roiRatio: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cogcore", Subsystem: "economy", Name: "roi_ratio",
			Help: "total_value divided by total_spent (floor 1).",
		}),
		harmCounter: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cogcore", Subsystem: "evolution", Name: "harm_counter",
			Help: "Consecutive harmful mutation attempts recorded by the policy engine.",
		}),
		painScore: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cogcore", Subsystem: "autonomy", Name: "pain_score",
			Help: "Most recently observed pain score from the last autonomy cycle.",
		}),
	}
}

// Observe refreshes every gauge from the current Economy snapshot. The
// pain score and harm counter are set by their owning subsystems directly
// via SetPainScore/SetHarmCounter since neither lives on economy.Manager.
func (m *Metrics) Observe(snap economy.Snapshot) {
	m.budget.Set(snap.Budget)
	m.netPosition.Set(snap.NetPosition)
	m.roiRatio.Set(snap.ROIRatio)
}

func (m *Metrics) SetHarmCounter(v int) {
	m.harmCounter.Set(float64(v))
}

func (m *Metrics) SetPainScore(v float64) {
	m.painScore.Set(v)
}
