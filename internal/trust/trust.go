// Package trust implements the Trust Model: a per-source score in [0,1]
// used to gate and weight advice carried by Intents. Grounded on the
// verify_intent_source call site in original_source's autonomy.py.
package trust

import "sync"

// Outcome is the result category a source's prior advice/action produced.
type Outcome string

const (
	Helpful     Outcome = "helpful"
	Neutral     Outcome = "neutral"
	Harmful     Outcome = "harmful"
	Existential Outcome = "existential"
)

var outcomeDeltas = map[Outcome]float64{
	Helpful:     0.05,
	Neutral:     0.01,
	Harmful:     -0.2,
	Existential: -1.0,
}

// VerifyThreshold is the minimum trust score for a source to pass
// verification (spec.md §4.4).
const VerifyThreshold = 0.3

const initialScore = 0.5

// Model tracks per-source trust scores.
type Model struct {
	mu     sync.Mutex
	scores map[string]float64
}

// New returns an empty Model; scores are created lazily at initialScore.
func New() *Model {
	return &Model{scores: make(map[string]float64)}
}

// Get returns source's current trust score, creating it at the initial
// value of 0.5 if unseen.
func (m *Model) Get(source string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(source)
}

func (m *Model) getLocked(source string) float64 {
	if s, ok := m.scores[source]; ok {
		return s
	}
	m.scores[source] = initialScore
	return initialScore
}

// Update applies outcome's delta to source's score, clamped to [0,1].
func (m *Model) Update(source string, outcome Outcome) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	score := m.getLocked(source) + outcomeDeltas[outcome]
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	m.scores[source] = score
	return score
}

// Verify reports whether source's trust score clears VerifyThreshold.
func (m *Model) Verify(source string) bool {
	return m.Get(source) >= VerifyThreshold
}

// AdviceWeight returns trust(source)*confidence, or 0 if source is below
// VerifyThreshold — untrusted advice carries no weight regardless of the
// claimed confidence.
func (m *Model) AdviceWeight(source string, confidence float64) float64 {
	t := m.Get(source)
	if t < VerifyThreshold {
		return 0
	}
	return t * confidence
}
