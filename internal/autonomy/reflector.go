package autonomy

import "github.com/nouscore/cogcore/internal/envelope"

// Evaluation is the Reflector's reduction of a Result, per spec.md §4.7
// step 5.
type Evaluation struct {
	Success bool    `json:"success"`
	Value   float64 `json:"value"`
	Notes   string  `json:"notes,omitempty"`
}

// Reflector translates a Result into {success, value, notes}. Ported
// from original_source's Reflector.evaluate.
type Reflector struct{}

func (Reflector) Evaluate(result envelope.Result) Evaluation {
	value := -0.5
	if result.Success {
		value = 1.0
	}
	notes := result.Message
	if notes == "" {
		notes = string(result.ErrorCode)
	}
	return Evaluation{Success: result.Success, Value: value, Notes: notes}
}
