// Package tools provides minimal reference tool bodies — maintainer.tick,
// memory.retrieve, memory.search_patterns, evolution.propose_mutation —
// so the Autonomy Controller's Act() mapping (spec.md §4.7 step 4) has
// something real to invoke. These are explicitly not production tool
// bodies; spec.md §1 excludes concrete tool implementations from this
// component's scope.
package tools

import (
	"context"
	"fmt"

	"github.com/nouscore/cogcore/internal/economy"
	"github.com/nouscore/cogcore/internal/envelope"
	"github.com/nouscore/cogcore/internal/evolution"
	"github.com/nouscore/cogcore/internal/memory"
	"github.com/nouscore/cogcore/internal/orchestrator"
)

// Maintainer implements the "maintainer" tool's "tick" action: a
// zero-cost health tick that advances the Economy's wall-clock
// regeneration and reports current pressure.
type Maintainer struct {
	Economy *economy.Manager
}

func (Maintainer) Name() string   { return "maintainer" }
func (Maintainer) Domain() string { return "cognition" }

func (Maintainer) EstimateCost(envelope.Envelope) float64 { return 0.0 }

func (m Maintainer) Execute(_ context.Context, env envelope.Envelope) envelope.Result {
	if env.Action != "tick" {
		return envelope.Failure(envelope.ErrorInvalidRequest, fmt.Sprintf("maintainer: unsupported action %q", env.Action))
	}
	m.Economy.Tick()
	snap := m.Economy.Snapshot()
	return envelope.Result{
		Success: true,
		Output: map[string]interface{}{
			"budget":       snap.Budget,
			"net_position": snap.NetPosition,
		},
	}
}

// MemoryRetrieve implements the "memory" tool's "retrieve" action: a
// causal explanation lookup (why an outcome happened) when context
// carries an outcome_id, otherwise the most recent nodes.
type MemoryRetrieve struct {
	CML *memory.CML
}

func (MemoryRetrieve) Name() string   { return "memory" }
func (MemoryRetrieve) Domain() string { return "memory" }

func (MemoryRetrieve) EstimateCost(envelope.Envelope) float64 { return 0.1 }

func (m MemoryRetrieve) Execute(_ context.Context, env envelope.Envelope) envelope.Result {
	switch env.Action {
	case "retrieve":
		if outcomeID, ok := env.Context["outcome_id"].(string); ok && outcomeID != "" {
			return envelope.Result{Success: true, Output: m.CML.Why(outcomeID)}
		}
		return envelope.Result{Success: true, Output: map[string]interface{}{"message": "no outcome_id supplied"}}
	case "search_patterns":
		return envelope.Result{Success: true, Output: m.CML.FindFailurePatterns()}
	default:
		return envelope.Failure(envelope.ErrorInvalidRequest, fmt.Sprintf("memory: unsupported action %q", env.Action))
	}
}

// EvolutionPropose implements the "evolution" tool's "propose_mutation"
// action, running a proposed file set through the Evolution Policy
// Engine. context["files"] carries []evolution.ProposedFile; an empty
// proposal is treated as a no-op evaluation used for demonstration.
type EvolutionPropose struct {
	Engine *evolution.Engine
}

func (EvolutionPropose) Name() string   { return "evolution" }
func (EvolutionPropose) Domain() string { return "evolution" }

func (EvolutionPropose) EstimateCost(envelope.Envelope) float64 { return 0.2 }

func (t EvolutionPropose) Execute(ctx context.Context, env envelope.Envelope) envelope.Result {
	if env.Action != "propose_mutation" {
		return envelope.Failure(envelope.ErrorInvalidRequest, fmt.Sprintf("evolution: unsupported action %q", env.Action))
	}

	files, _ := env.Context["files"].([]evolution.ProposedFile)
	attempt := t.Engine.EvaluateMutation(ctx, files)

	if attempt.Rejected {
		return envelope.Result{
			Success:   false,
			ErrorCode: envelope.ErrorPolicyBlocked,
			Message:   attempt.Reason,
			Output:    attempt,
		}
	}
	return envelope.Result{Success: true, Output: attempt}
}

// RegisterAll wires every reference tool body into o.
func RegisterAll(o *orchestrator.Orchestrator, econ *economy.Manager, cml *memory.CML, engine *evolution.Engine) {
	o.Register(Maintainer{Economy: econ})
	o.Register(MemoryRetrieve{CML: cml})
	o.Register(EvolutionPropose{Engine: engine})
}
