// Package autonomy implements the Autonomy Controller: the single
// Observe → Plan → Decide → Act → Reflect → Learn → Log cycle that
// drives the cognitive core. Ported from original_source's
// cortex/core/autonomy.py (Planner, Decider, Reflector,
// AutonomyController.run_cycle).
package autonomy

import (
	"context"
	"fmt"
	"time"

	"github.com/nouscore/cogcore/internal/economy"
	"github.com/nouscore/cogcore/internal/envelope"
	"github.com/nouscore/cogcore/internal/intent"
	"github.com/nouscore/cogcore/internal/logging"
	"github.com/nouscore/cogcore/internal/memory"
	"github.com/nouscore/cogcore/internal/observer"
	"github.com/nouscore/cogcore/internal/orchestrator"
	"github.com/nouscore/cogcore/internal/telemetry"
	"github.com/nouscore/cogcore/internal/trust"
)

// CycleResult is what RunCycle returns for callers (CLI `tick`, tests)
// that need to inspect what happened.
type CycleResult struct {
	Status     string          `json:"status"` // "rejected" | "idle" | "acted"
	Reason     string          `json:"reason,omitempty"`
	Result     *envelope.Result `json:"result,omitempty"`
	Evaluation *Evaluation     `json:"evaluation,omitempty"`
}

// ledgerWindow is the default N per spec.md §4.7 step 1.
const ledgerWindow = 100

// Controller owns one cycle's worth of dependencies. Constructed once at
// boot by internal/app; not safe for concurrent RunCycle calls (spec.md
// §5 single-writer rule).
type Controller struct {
	intents      *intent.Stack
	orchestrator *orchestrator.Orchestrator
	cml          *memory.CML
	trust        *trust.Model
	economy      *economy.Manager

	planner   *Planner
	decider   *Decider
	reflector Reflector

	explain *ExplainWriter
	logger  logging.ComponentLogger
	tel     telemetry.Telemetry
}

// Config bundles the Controller's construction-time dependencies.
type Config struct {
	Intents      *intent.Stack
	Orchestrator *orchestrator.Orchestrator
	CML          *memory.CML
	Trust        *trust.Model
	Economy      *economy.Manager
	ExplainPath  string
	Logger       logging.ComponentLogger
	Telemetry    telemetry.Telemetry
}

func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.NoOp{}
	}
	return &Controller{
		intents:      cfg.Intents,
		orchestrator: cfg.Orchestrator,
		cml:          cfg.CML,
		trust:        cfg.Trust,
		economy:      cfg.Economy,
		planner:      NewPlanner(cfg.Trust, cfg.Economy, cfg.Logger),
		decider:      NewDecider(cfg.Economy),
		reflector:    Reflector{},
		explain:      NewExplainWriter(cfg.ExplainPath),
		logger:       cfg.Logger.WithComponent("core/autonomy"),
		tel:          cfg.Telemetry,
	}
}

// RunCycle executes one Observe→Plan→Decide→Act→Reflect→Learn→Log cycle.
func (c *Controller) RunCycle(ctx context.Context) (CycleResult, error) {
	ctx, span := c.tel.StartSpan(ctx, "autonomy.run_cycle")
	defer span.End()

	// 1. Observe.
	records := c.orchestrator.RecentLedger(ledgerWindow)
	summary := observer.CollectSignals(records)
	observationFields := map[string]interface{}{
		"pain_score":       summary.PainScore,
		"pressure_sources": summary.PressureSources,
		"trend":            summary.Trend,
		"recent_actions":   len(records),
	}

	// 2. Plan.
	c.intents.Decay(time.Now())
	topIntent, refusals := c.planner.Plan(summary, c.intents)

	for _, r := range refusals {
		c.writeExplain(ExplainRecord{
			Time:        time.Now(),
			Decision:    map[string]interface{}{"action": "reject", "reason": r.Reason, "intent_id": r.IntentID, "source": r.Source},
			Observation: observationFields,
		})
	}

	// 3. Decide.
	adviceWeight := 0.0
	if topIntent != nil {
		if advice, ok := topIntent.Context["advice"].(Advice); ok {
			adviceWeight = c.trust.AdviceWeight(advice.NodeID, advice.Confidence)
		}
	}
	decision := c.decider.Decide(summary.PainScore, topIntent, adviceWeight)
	span.SetAttribute("pain_score", summary.PainScore)

	switch decision.Action {
	case ActionReject:
		span.SetAttribute("status", "rejected")
		span.RecordError(fmt.Errorf("%s", decision.Reason))
		c.logger.Info("refusing intent", map[string]interface{}{"reason": decision.Reason})
		c.writeExplain(ExplainRecord{
			Time:        time.Now(),
			Decision:    map[string]interface{}{"action": "reject", "reason": decision.Reason, "intent": topIntent},
			Observation: observationFields,
		})
		if topIntent != nil {
			c.intents.Remove(topIntent.ID, intent.Refused)
		}
		return CycleResult{Status: "rejected", Reason: decision.Reason}, nil

	case ActionIdle:
		span.SetAttribute("status", "idle")
		c.writeExplain(ExplainRecord{
			Time:        time.Now(),
			Decision:    map[string]interface{}{"action": "idle", "reason": decision.Reason},
			Observation: observationFields,
		})
		return CycleResult{Status: "idle", Reason: decision.Reason}, nil
	}

	// 4. Act.
	sessionID := "cycle_" + time.Now().Format("20060102T150405.000000000")
	if _, err := c.cml.StartDecisionSession(sessionID, map[string]interface{}{
		"task": decision.Intent.Description, "source": decision.Intent.Source,
	}); err != nil {
		return CycleResult{}, err
	}

	env := envelopeForIntent(decision.Intent)
	result := c.orchestrator.Invoke(ctx, env, decision.Intent)

	if _, err := c.cml.RecordToolExecution(sessionID, env.ToolName, env.Context, map[string]interface{}{
		"success": result.Success, "message": result.Message,
	}, result.CostSpent, result.Success); err != nil {
		return CycleResult{}, err
	}

	// 5. Reflect.
	evaluation := c.reflector.Evaluate(result)

	// 6. Learn: close the session, removing the intent if fulfilled.
	if _, err := c.cml.RecordOutcome(sessionID, decision.Intent.Description, evaluation.Success, map[string]interface{}{
		"value": evaluation.Value,
	}); err != nil {
		return CycleResult{}, err
	}
	if evaluation.Success {
		c.intents.Remove(decision.Intent.ID, intent.Fulfilled)
	}
	c.trust.Update(decision.Intent.Source, outcomeFor(evaluation))

	// 7. Log.
	c.writeExplain(ExplainRecord{
		Time:        time.Now(),
		Decision:    map[string]interface{}{"action": "act", "reason": decision.Reason, "intent": decision.Intent},
		Observation: observationFields,
		Result:      result,
		Evaluation:  evaluation,
	})

	span.SetAttribute("status", "acted")
	span.SetAttribute("tool_name", env.ToolName)
	if !result.Success {
		span.RecordError(fmt.Errorf("%s", result.Message))
	}
	return CycleResult{Status: "acted", Result: &result, Evaluation: &evaluation}, nil
}

// LastRefusal surfaces the most recent reject decision from the
// explainability log, for the vitals snapshot's sovereignty section.
func (c *Controller) LastRefusal() *ExplainRecord {
	return c.explain.LastRefusal()
}

func outcomeFor(e Evaluation) trust.Outcome {
	if e.Success {
		return trust.Helpful
	}
	return trust.Harmful
}

// envelopeForIntent maps an intent's kind to an Envelope, per spec.md
// §4.7 step 4.
func envelopeForIntent(i *intent.Intent) envelope.Envelope {
	ctx := map[string]interface{}{}
	for k, v := range i.Context {
		ctx[k] = v
	}
	ctx["priority"] = i.Priority

	base := envelope.Envelope{
		Context:       ctx,
		RiskLevel:     envelope.RiskLow,
		Caller:        "autonomy",
		EstimatedCost: 0.1,
	}

	switch i.Kind {
	case intent.Maintain:
		base.ToolName = "maintainer"
		base.Domain = "cognition"
		base.Action = "tick"
		base.EstimatedCost = 0.0
	case intent.Serve:
		base.ToolName = "memory"
		base.Domain = "memory"
		base.Action = "retrieve"
	case intent.Explore:
		base.ToolName = "memory"
		base.Domain = "memory"
		base.Action = "search_patterns"
	case intent.Learn:
		base.ToolName = "evolution"
		base.Domain = "evolution"
		base.Action = "propose_mutation"
		base.Context["goal"] = i.Description
	}
	return base
}

func (c *Controller) writeExplain(rec ExplainRecord) {
	if err := c.explain.Write(rec); err != nil {
		c.logger.Warn("failed to write explainability record", map[string]interface{}{"error": err.Error()})
	}
}
