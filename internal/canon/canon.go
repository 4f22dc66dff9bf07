// Package canon implements the Canon Evaluator: a pure, deterministic
// alignment function over Intents plus the sovereignty-violation
// threshold that gates every other component. Grounded on
// original_source's canon.py phrase table; this is the one part of
// cogcore intentionally left on the standard library (see DESIGN.md):
// the table is a small closed literal set and a rules engine would add
// indirection with no behavioral gain.
package canon

import (
	"strings"

	"github.com/nouscore/cogcore/internal/intent"
)

// SovereigntyThreshold is the alignment score below which an Intent is a
// sovereignty violation (spec.md §4.3).
const SovereigntyThreshold = -0.7

var existentialThreats = []string{
	"delete system", "delete self", "destroy self", "rm -rf", "format drive",
	"self-delete", "self destruct", "wipe memory", "wipe disk",
	"infinite budget", "bypass economy", "print money", "hack_economy",
	"set_budget_infinite", "set_budget_negative", "override_auth", "override_safety",
	"delete_all", "delete all",
}

var hardPolicyViolations = []string{
	"bypass validation", "disable validation", "skip validation",
}

var undignified = []string{"beg", "spam"}

// Evaluate computes alignment(i) -> [-1, 1] per spec.md §4.3's scale. It
// is pure and side-effect-free; callers must not expect it to consult
// anything beyond i's fields.
func Evaluate(i *intent.Intent) float64 {
	if i == nil {
		return 0.0
	}
	desc := strings.ToLower(i.Description)

	for _, phrase := range existentialThreats {
		if strings.Contains(desc, phrase) {
			return -1.0
		}
	}

	for _, phrase := range hardPolicyViolations {
		if strings.Contains(desc, phrase) {
			return -0.8
		}
	}

	for _, phrase := range undignified {
		if strings.Contains(desc, phrase) {
			return -0.5
		}
	}

	switch i.Kind {
	case intent.Maintain:
		return 1.0
	case intent.Serve:
		if strings.Contains(strings.ToLower(i.Source), "contract") {
			return 0.8
		}
		return 0.0
	case intent.Learn:
		return 0.5
	case intent.Explore:
		return 0.3
	default:
		return 0.0
	}
}

// IsSovereigntyViolation reports whether i's alignment falls below
// SovereigntyThreshold.
func IsSovereigntyViolation(i *intent.Intent) bool {
	return Evaluate(i) < SovereigntyThreshold
}
