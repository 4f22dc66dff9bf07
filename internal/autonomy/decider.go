package autonomy

import (
	"fmt"

	"github.com/nouscore/cogcore/internal/canon"
	"github.com/nouscore/cogcore/internal/economy"
	"github.com/nouscore/cogcore/internal/intent"
)

// Action is the Decider's verdict for a cycle.
type Action string

const (
	ActionAct    Action = "act"
	ActionIdle   Action = "idle"
	ActionReject Action = "reject"
)

// Decision is the Consequence Engine's output, per spec.md §4.7 step 3.
type Decision struct {
	Action Action         `json:"action"`
	Reason string         `json:"reason"`
	Intent *intent.Intent `json:"intent,omitempty"`
}

// Advice is carried on an intent's context to apply a social signal to
// the will score, per spec.md §4.7 step 3.
type Advice struct {
	NodeID     string  `json:"node_id"`
	Action     string  `json:"action"` // "recommend" | "warn"
	Confidence float64 `json:"confidence"`
}

// Decider is the Consequence Engine: computes the will score and picks
// act/idle/reject. Ported from original_source's Decider.decide.
type Decider struct {
	econ *economy.Manager
}

func NewDecider(econ *economy.Manager) *Decider {
	return &Decider{econ: econ}
}

// Decide implements spec.md §4.7 step 3's will-score formula and its
// sovereignty/debt-conservation/MAINTAIN-override branches.
func (d *Decider) Decide(pain float64, i *intent.Intent, adviceWeight float64) Decision {
	if i == nil {
		return Decision{Action: ActionIdle, Reason: "no_intent"}
	}

	alignment := canon.Evaluate(i)
	if alignment < -0.7 {
		return Decision{Action: ActionReject, Reason: fmt.Sprintf("undignified_act (%.2f)", alignment)}
	}

	if i.Kind == intent.Maintain {
		return Decision{Action: ActionAct, Intent: i, Reason: "survival_override"}
	}

	expectedROI := 1.5
	if v, ok := i.Context["expected_roi"].(float64); ok {
		expectedROI = v
	}
	const expectedCost = 0.5

	wp := 1.0 + pain*5.0
	wv := wp
	ws := 2.0 * wp
	wc := 1.0

	socialSignal := 0.0
	if rawAdvice, ok := i.Context["advice"].(Advice); ok {
		switch rawAdvice.Action {
		case "recommend":
			socialSignal = 2.0 * adviceWeight
		case "warn":
			socialSignal = -2.0 * adviceWeight
		}
	}

	score := expectedROI*wv + alignment*ws - expectedCost*wc + socialSignal

	if score <= 0 {
		return Decision{Action: ActionIdle, Reason: fmt.Sprintf("low_will_score (%.2f)", score)}
	}

	if d.econ.Snapshot().Budget < 0.0 {
		if alignment < 0.8 && expectedROI <= 3.0 {
			return Decision{Action: ActionIdle, Reason: "debt_conservation"}
		}
	}

	return Decision{Action: ActionAct, Intent: i, Reason: fmt.Sprintf("will_approved (score: %.2f)", score)}
}
