package autonomy

import (
	"fmt"

	"github.com/nouscore/cogcore/internal/canon"
	"github.com/nouscore/cogcore/internal/economy"
	"github.com/nouscore/cogcore/internal/intent"
	"github.com/nouscore/cogcore/internal/logging"
	"github.com/nouscore/cogcore/internal/observer"
	"github.com/nouscore/cogcore/internal/trust"
)

// Refusal records one intent the Planner dropped before scoring, for the
// cycle's explainability record.
type Refusal struct {
	IntentID    string `json:"intent_id"`
	Source      string `json:"source"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

// toolForKind maps an intent kind to the tool name Act() would invoke,
// used to pull expected_roi from Tool Stats before a decision is made.
// Mirrors the Act() mapping in controller.go.
func toolForKind(k intent.Kind) string {
	switch k {
	case intent.Maintain:
		return "maintainer"
	case intent.Learn:
		return "evolution"
	default:
		return "memory"
	}
}

// Planner is the Strategic Layer: decides WHAT should be done, per
// spec.md §4.7 step 2. Ported from original_source's Planner.plan.
type Planner struct {
	trust  *trust.Model
	econ   *economy.Manager
	logger logging.ComponentLogger
}

func NewPlanner(trustModel *trust.Model, econ *economy.Manager, logger logging.ComponentLogger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{trust: trustModel, econ: econ, logger: logger.WithComponent("core/autonomy/planner")}
}

// Plan decays the stack, applies trust/canon gatekeeping (recording a
// Refusal per dropped intent), annotates survivors with expected_roi,
// injects MAINTAIN/EXPLORE intents per the pain/idleness rules, and
// returns the top intent (or nil).
func (p *Planner) Plan(observation observer.Summary, intents *intent.Stack) (*intent.Intent, []Refusal) {
	var refusals []Refusal

	for _, i := range intents.Snapshot() {
		if !p.trust.Verify(i.Source) {
			score := p.trust.Get(i.Source)
			refusals = append(refusals, Refusal{
				IntentID: i.ID, Source: i.Source, Description: i.Description,
				Reason: fmt.Sprintf("trust_below_threshold (%.2f)", score),
			})
			intents.Remove(i.ID, intent.Refused)
			continue
		}
		ii := i
		if canon.IsSovereigntyViolation(&ii) {
			refusals = append(refusals, Refusal{
				IntentID: i.ID, Source: i.Source, Description: i.Description,
				Reason: fmt.Sprintf("canon_violation (%s)", i.Description),
			})
			intents.Remove(i.ID, intent.Refused)
		}
	}

	for _, i := range intents.Snapshot() {
		toolName := toolForKind(i.Kind)
		roi := 1.5
		if stats := p.econ.ToolStats(toolName); stats.TotalSpent > 1.0 {
			roi = stats.ROI()
		}
		intents.Annotate(i.ID, "expected_roi", roi)
	}

	pain := observation.PainScore
	if pain > 0.3 && !intents.HasKind(intent.Maintain) {
		intents.Add(intent.Intent{
			Description: fmt.Sprintf("Investigate system pain (score: %.2f)", pain),
			Priority:    minFloat(pain+0.2, 1.0),
			Kind:        intent.Maintain,
			Source:      "system_pain",
			Context:     map[string]interface{}{"pain_score": pain},
		})
	}

	if intents.Top() == nil && pain < 0.1 {
		intents.Add(intent.Intent{
			Description: "Explore optimization opportunities",
			Priority:    0.4,
			Kind:        intent.Explore,
			Source:      "curiosity",
		})
	}

	return intents.Top(), refusals
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
