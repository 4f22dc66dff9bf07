package evolution

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/nouscore/cogcore/internal/logging"
)

// MutationAttempt is one proposal run through the Engine, retained in
// its bounded history. Mirrors original_source's MutationAttempt.
type MutationAttempt struct {
	ID           string             `json:"id"`
	Files        []ProposedFile     `json:"-"`
	FilePaths    []string           `json:"file_paths"`
	Risk         RiskLevel          `json:"risk"`
	Approved     bool               `json:"approved"`
	Rejected     bool               `json:"rejected"`
	Reason       string             `json:"reason,omitempty"`
	Violations   []Violation        `json:"violations,omitempty"`
	Simulated    bool               `json:"simulated"`
	Simulation   *SimulationResult  `json:"simulation,omitempty"`
	HarmDetected bool               `json:"harm_detected"`
	Timestamp    time.Time          `json:"timestamp"`
}

// coreDomainPaths mirrors original_source's _assess_risk core_patterns.
var coreDomainPaths = []string{"/core/", "/brain/", "/body/", "/memory/"}

const maxHistory = 500

// Engine is the Evolution Policy Engine: the gate every proposed
// self-modification passes through before it may be applied.
type Engine struct {
	mu         sync.Mutex
	policy     Policy
	policyPath string
	scanner    *Scanner
	runner     *SimulationRunner
	watcher    *fsnotify.Watcher
	logger     logging.ComponentLogger

	history     []MutationAttempt
	harmCounter int
	debt        float64
	frozen      bool
}

// New constructs an Engine, loading policyPath (or defaults), and, when
// policyPath is non-empty, starts an fsnotify watch that hot-reloads the
// policy on every write.
func New(policyPath, repoRoot string, logger logging.ComponentLogger) (*Engine, error) {
	policy, err := LoadPolicy(policyPath)
	if err != nil {
		return nil, err
	}
	scanner, err := NewScanner()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	e := &Engine{
		policy:     policy,
		policyPath: policyPath,
		scanner:    scanner,
		runner:     NewSimulationRunner(scanner, repoRoot),
		logger:     logger.WithComponent("evolution"),
	}

	if policyPath != "" {
		if err := e.watchPolicy(); err != nil {
			e.logger.Warn("policy hot-reload disabled", map[string]interface{}{"error": err.Error()})
		}
	}
	return e, nil
}

func (e *Engine) watchPolicy() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("evolution: new watcher: %w", err)
	}
	if err := w.Add(e.policyPath); err != nil {
		w.Close()
		return fmt.Errorf("evolution: watch policy: %w", err)
	}
	e.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					reloaded, err := LoadPolicy(e.policyPath)
					if err != nil {
						e.logger.Warn("policy reload failed", map[string]interface{}{"error": err.Error()})
						continue
					}
					e.mu.Lock()
					e.policy = reloaded
					e.mu.Unlock()
					e.logger.Info("policy reloaded", nil)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				e.logger.Warn("policy watcher error", map[string]interface{}{"error": err.Error()})
			}
		}
	}()
	return nil
}

// Close stops the policy watcher, if any.
func (e *Engine) Close() {
	if e.watcher != nil {
		e.watcher.Close()
	}
}

// Policy returns the currently active policy.
func (e *Engine) Policy() Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

// EvaluateMutation runs the six-step decision procedure against a
// proposed set of file changes: freeze check, max_files check, forbidden
// domain check, canon scan, risk classification, simulation (when
// must_simulate). Ported from original_source's evaluate_mutation.
func (e *Engine) EvaluateMutation(ctx context.Context, files []ProposedFile) MutationAttempt {
	e.mu.Lock()
	policy := e.policy
	frozen := e.frozen
	e.mu.Unlock()

	attempt := MutationAttempt{
		ID:        uuid.NewString(),
		Files:     files,
		FilePaths: filePaths(files),
		Timestamp: time.Now(),
	}

	// Step 1: freeze check. No simulation runs while frozen.
	if frozen {
		attempt.Rejected = true
		attempt.Reason = "evolution_freeze_active"
		e.record(attempt)
		return attempt
	}

	// Step 2: max_files check.
	if len(files) > policy.MaxFiles {
		attempt.Rejected = true
		attempt.Reason = "too_many_files"
		e.record(attempt)
		return attempt
	}

	// Step 3: forbidden domain check (path-based, independent of content).
	if domain := touchesForbiddenDomain(files, policy.ForbiddenDomains); domain != "" {
		attempt.Rejected = true
		attempt.Reason = "forbidden_domain:" + domain
		e.record(attempt)
		return attempt
	}

	// Step 4: canon scan over file contents.
	violations, err := e.scanner.Scan(policy.ScanRules, files)
	if err != nil {
		attempt.Rejected = true
		attempt.Reason = "scan_error:" + err.Error()
		e.record(attempt)
		return attempt
	}
	if len(violations) > 0 {
		attempt.Rejected = true
		attempt.Reason = "canon_violation"
		attempt.Violations = violations
		e.record(attempt)
		return attempt
	}

	// Step 5: risk classification.
	attempt.Risk = assessRisk(files)

	// Step 6: simulation.
	if policy.MustSimulate {
		attempt.Simulated = true
		sim := e.runner.Simulate(ctx, policy.ScanRules, files, policy.SimulationTimeout)
		attempt.Simulation = &sim
		if !sim.Passed {
			attempt.Rejected = true
			attempt.Reason = "simulation_failed:" + sim.FailureStage
			attempt.HarmDetected = true
			e.record(attempt)
			return attempt
		}
	}

	attempt.Approved = true
	e.record(attempt)
	return attempt
}

// record appends attempt to history (bounded), tallies harm, and
// evaluates the auto-freeze threshold. Ported from original_source's
// record_mutation_attempt.
func (e *Engine) record(attempt MutationAttempt) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, attempt)
	if len(e.history) > maxHistory {
		e.history = e.history[len(e.history)-maxHistory:]
	}

	if attempt.HarmDetected {
		e.harmCounter++
		e.debt += 1.0
		if e.harmCounter >= e.policy.AutoFreezeThreshold {
			e.frozen = true
		}
	}
}

// ShouldFreeze reports whether the engine is currently frozen.
func (e *Engine) ShouldFreeze() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frozen
}

// EvolutionDebt returns accumulated harm debt.
func (e *Engine) EvolutionDebt() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.debt
}

// Unfreeze clears the frozen state and resets the harm counter, for
// operator-driven recovery after review.
func (e *Engine) Unfreeze() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frozen = false
	e.harmCounter = 0
}

// PolicyReport summarizes engine state, mirroring
// original_source's get_policy_report.
type PolicyReport struct {
	Policy         Policy    `json:"policy"`
	Frozen         bool      `json:"frozen"`
	HarmCounter    int       `json:"harm_counter"`
	EvolutionDebt  float64   `json:"evolution_debt"`
	TotalAttempts  int       `json:"total_attempts"`
	ApprovedCount  int       `json:"approved_count"`
	RejectedCount  int       `json:"rejected_count"`
}

func (e *Engine) PolicyReport() PolicyReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := PolicyReport{
		Policy:        e.policy,
		Frozen:        e.frozen,
		HarmCounter:   e.harmCounter,
		EvolutionDebt: e.debt,
		TotalAttempts: len(e.history),
	}
	for _, a := range e.history {
		if a.Approved {
			report.ApprovedCount++
		}
		if a.Rejected {
			report.RejectedCount++
		}
	}
	return report
}

// History returns the bounded mutation attempt history, newest last.
func (e *Engine) History() []MutationAttempt {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]MutationAttempt, len(e.history))
	copy(out, e.history)
	return out
}

func filePaths(files []ProposedFile) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

func touchesForbiddenDomain(files []ProposedFile, domains []string) string {
	for _, f := range files {
		lower := strings.ToLower(f.Path)
		for _, d := range domains {
			if strings.Contains(lower, "/"+d+"/") || strings.Contains(lower, d+".go") {
				return d
			}
		}
	}
	return ""
}

// assessRisk classifies a mutation's risk by counting risk factors:
// touching a core package path (+2), touching more than 3 files (+1),
// touching a .yaml/.yml/.json/.toml config file by extension (+1). Ported
// from original_source's _assess_risk.
func assessRisk(files []ProposedFile) RiskLevel {
	factors := 0

	for _, f := range files {
		lower := strings.ToLower(f.Path)
		for _, p := range coreDomainPaths {
			if strings.Contains(lower, p) {
				factors += 2
				break
			}
		}
	}
	if len(files) > 3 {
		factors++
	}
	for _, f := range files {
		lower := strings.ToLower(f.Path)
		if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") ||
			strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".toml") {
			factors++
			break
		}
	}

	switch {
	case factors >= 3:
		return RiskCritical
	case factors >= 2:
		return RiskHigh
	case factors >= 1:
		return RiskMedium
	default:
		return RiskLow
	}
}
