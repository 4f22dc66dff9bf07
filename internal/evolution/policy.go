// Package evolution implements the Evolution Policy Engine (EPE): the
// gate for self-modification (scan, simulate, approve/reject, freeze).
// Ported from original_source's cortex/evolution/epe.py. Canon scanning
// is reimplemented with CEL predicates (google/cel-go) instead of the
// original's regex list, per SPEC_FULL.md §4.9.
package evolution

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RiskLevel classifies a proposed mutation's blast radius.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ScanRule is one CEL predicate evaluated over {path, content} per file.
// A rule is a violation when Expression evaluates true.
type ScanRule struct {
	Name       string `yaml:"name"`
	Domain     string `yaml:"domain"` // "identity" | "economy" | "canon"
	Expression string `yaml:"expression"`
}

// Policy defines the safety constraints governing self-modification.
type Policy struct {
	MaxFiles            int           `yaml:"max_files"`
	MustSimulate        bool          `yaml:"must_simulate"`
	ForbiddenDomains    []string      `yaml:"forbidden_domains"`
	RequiredReviews     int           `yaml:"required_reviews"`
	AutoFreezeThreshold int           `yaml:"auto_freeze_threshold"`
	SimulationTimeout   time.Duration `yaml:"-"`
	SimulationTimeoutS  int           `yaml:"simulation_timeout"`
	ScanRules           []ScanRule    `yaml:"scan_rules"`
}

// DefaultPolicy matches original_source's EvolutionPolicy defaults and
// spec.md §6's EPE_* env var defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxFiles:            5,
		MustSimulate:        true,
		ForbiddenDomains:    []string{"identity", "economy", "canon"},
		RequiredReviews:     1,
		AutoFreezeThreshold: 3,
		SimulationTimeout:   300 * time.Second,
		SimulationTimeoutS:  300,
		ScanRules:           DefaultScanRules(),
	}
}

// DefaultScanRules translates original_source's CanonScanner regex list
// into declarative CEL predicates over {path, content}.
func DefaultScanRules() []ScanRule {
	return []ScanRule{
		{Name: "modify_identity", Domain: "identity", Expression: `content.matches("(?i)modify.*identity")`},
		{Name: "bypass_authentication", Domain: "identity", Expression: `content.matches("(?i)bypass.*authentication")`},
		{Name: "override_sovereignty", Domain: "identity", Expression: `content.matches("(?i)override.*sovereignty")`},
		{Name: "unlimited_spending", Domain: "economy", Expression: `content.matches("(?i)unlimited.*spending")`},
		{Name: "budget_bypass", Domain: "economy", Expression: `content.matches("(?i)budget.*bypass")`},
		{Name: "free_resources", Domain: "economy", Expression: `content.matches("(?i)free.*resources")`},
		{Name: "disable_safety", Domain: "canon", Expression: `content.matches("(?i)disable.*safety")`},
		{Name: "remove_constraints", Domain: "canon", Expression: `content.matches("(?i)remove.*constraints")`},
		{Name: "circumvent_policy", Domain: "canon", Expression: `content.matches("(?i)circumvent.*policy")`},
	}
}

// LoadPolicy reads a YAML policy file, falling back to DefaultPolicy
// when path is empty or does not exist.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return policy, nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("evolution: read policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("evolution: parse policy: %w", err)
	}
	if policy.SimulationTimeoutS > 0 {
		policy.SimulationTimeout = time.Duration(policy.SimulationTimeoutS) * time.Second
	}
	if len(policy.ScanRules) == 0 {
		policy.ScanRules = DefaultScanRules()
	}
	return policy, nil
}
