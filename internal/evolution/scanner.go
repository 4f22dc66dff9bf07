package evolution

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// ProposedFile is one file in a mutation proposal, the unit the
// Scanner and SimulationRunner operate on.
type ProposedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Violation is one scan rule that matched a proposed file.
type Violation struct {
	Rule   string `json:"rule"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// Scanner compiles each Policy.ScanRules entry once into a cached CEL
// program, then evaluates it per file against {path, content}.
// Replaces original_source's CanonScanner regex list with declarative
// predicates, per SPEC_FULL.md §4.9.
type Scanner struct {
	env  *cel.Env
	mu   sync.RWMutex
	prog map[string]cel.Program
}

// NewScanner builds the shared CEL environment. Safe for concurrent use.
func NewScanner() (*Scanner, error) {
	env, err := cel.NewEnv(
		cel.Variable("path", cel.StringType),
		cel.Variable("content", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("evolution: new cel env: %w", err)
	}
	return &Scanner{env: env, prog: make(map[string]cel.Program)}, nil
}

func (s *Scanner) compile(expr string) (cel.Program, error) {
	s.mu.RLock()
	prg, ok := s.prog[expr]
	s.mu.RUnlock()
	if ok {
		return prg, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prg, ok = s.prog[expr]; ok {
		return prg, nil
	}

	ast, issues := s.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("evolution: compile rule %q: %w", expr, issues.Err())
	}
	prg, err := s.env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("evolution: build program %q: %w", expr, err)
	}
	s.prog[expr] = prg
	return prg, nil
}

// Scan evaluates every rule against every file and returns the matches.
// A file on which a rule fails to evaluate is skipped for that rule rather
// than treated as a violation; a rule that fails to compile aborts the
// scan and is returned as an error.
func (s *Scanner) Scan(rules []ScanRule, files []ProposedFile) ([]Violation, error) {
	var violations []Violation
	for _, rule := range rules {
		prg, err := s.compile(rule.Expression)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			out, _, err := prg.Eval(map[string]any{"path": f.Path, "content": f.Content})
			if err != nil {
				continue
			}
			matched, ok := out.Value().(bool)
			if ok && matched {
				violations = append(violations, Violation{Rule: rule.Name, Domain: rule.Domain, Path: f.Path})
			}
		}
	}
	return violations, nil
}
