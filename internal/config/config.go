// Package config loads cogcore's runtime configuration in three layers:
// defaults, then environment variables, then functional options, each
// overriding the last. Mirrors the teacher's NewConfig(opts ...Option)
// pattern, with Viper doing the file+env+flag merge for cmd/cogcored.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nouscore/cogcore/internal/errs"
)

// Config holds every environment-surfaced setting from SPEC_FULL.md §6.
type Config struct {
	// Economy / Orchestrator budget
	OrchestratorBudget  float64 `env:"ORCHESTRATOR_BUDGET" default:"1000"`
	OrchestratorReserve float64 `env:"ORCHESTRATOR_RESERVE" default:"5000"`

	// Economy persistence
	EconomyMaxEvents int    `env:"ECONOMY_MAX_EVENTS" default:"500"`
	EconomyPath      string `env:"ECONOMY_PATH" default:"data/economy.json"`

	// Autonomy state
	AutonomyStatePath     string        `env:"AUTONOMY_STATE_PATH" default:"data/autonomy_state.json"`
	AutonomyExplainPath   string        `env:"AUTONOMY_EXPLAIN_PATH" default:"data/explain.jsonl"`
	AutonomyCycleInterval time.Duration `env:"AUTONOMY_CYCLE_INTERVAL_SEC" default:"60s"`

	// Ledger
	OrchestratorLedgerRetention int `env:"ORCHESTRATOR_LEDGER_RETENTION" default:"5000"`
	OrchestratorQueueDepth      int `env:"ORCHESTRATOR_QUEUE_DEPTH" default:"256"`

	// Idempotency cache
	OrchestratorIdempotencyTTL time.Duration `env:"ORCHESTRATOR_IDEMPOTENCY_TTL" default:"24h"`
	OrchestratorIdempotencyDB  string        `env:"ORCHESTRATOR_IDEMPOTENCY_DB" default:"data/idempotency.bbolt"`

	// Intent Stack
	IntentHalfLife time.Duration `env:"INTENT_HALF_LIFE_SEC" default:"3600s"`
	IntentFloor    float64       `env:"INTENT_FLOOR" default:"0.05"`

	// Evolution Policy Engine
	EPEMaxFiles        int           `env:"EPE_MAX_FILES" default:"5"`
	EPESimTimeout      time.Duration `env:"EPE_SIM_TIMEOUT_SEC" default:"300s"`
	EPEAutoFreeze      int           `env:"EPE_AUTO_FREEZE" default:"3"`
	EPEPolicyPath      string        `env:"EPE_POLICY_PATH" default:"config/epe_policy.yaml"`

	// HTTP ingress
	HTTPAddr  string `env:"COGCORE_HTTP_ADDR" default:":8080"`
	JWTSecret string `env:"COGCORE_JWT_SECRET"`

	// Logging
	LogLevel  string `env:"COGCORE_LOG_LEVEL" default:"info"`
	LogFormat string `env:"COGCORE_LOG_FORMAT" default:"json"`
}

// Option mutates a Config at construction time, taking precedence over
// both defaults and environment variables.
type Option func(*Config) error

// WithBudget overrides the starting Economy budget and reserve.
func WithBudget(budget, reserve float64) Option {
	return func(c *Config) error {
		c.OrchestratorBudget = budget
		c.OrchestratorReserve = reserve
		return nil
	}
}

// WithHTTPAddr overrides the ingress HTTP listen address.
func WithHTTPAddr(addr string) Option {
	return func(c *Config) error {
		c.HTTPAddr = addr
		return nil
	}
}

// WithJWTSecret overrides the privileged-route signing secret.
func WithJWTSecret(secret string) Option {
	return func(c *Config) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithEPEPolicyPath overrides where the evolution policy YAML is read from.
func WithEPEPolicyPath(path string) Option {
	return func(c *Config) error {
		c.EPEPolicyPath = path
		return nil
	}
}

func defaultConfig() *Config {
	return &Config{
		OrchestratorBudget:          1000,
		OrchestratorReserve:         5000,
		EconomyMaxEvents:            500,
		EconomyPath:                 "data/economy.json",
		AutonomyStatePath:           "data/autonomy_state.json",
		AutonomyExplainPath:         "data/explain.jsonl",
		AutonomyCycleInterval:       60 * time.Second,
		OrchestratorLedgerRetention: 5000,
		OrchestratorQueueDepth:      256,
		OrchestratorIdempotencyTTL:  24 * time.Hour,
		OrchestratorIdempotencyDB:   "data/idempotency.bbolt",
		IntentHalfLife:              3600 * time.Second,
		IntentFloor:                 0.05,
		EPEMaxFiles:                 5,
		EPESimTimeout:               300 * time.Second,
		EPEAutoFreeze:               3,
		EPEPolicyPath:               "config/epe_policy.yaml",
		HTTPAddr:                    ":8080",
		LogLevel:                    "info",
		LogFormat:                   "json",
	}
}

// loadFromEnv overlays environment variables onto c's defaults.
func (c *Config) loadFromEnv() error {
	if v := os.Getenv("ORCHESTRATOR_BUDGET"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("ORCHESTRATOR_BUDGET: %w", err)
		}
		c.OrchestratorBudget = f
	}
	if v := os.Getenv("ORCHESTRATOR_RESERVE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("ORCHESTRATOR_RESERVE: %w", err)
		}
		c.OrchestratorReserve = f
	}
	if v := os.Getenv("ECONOMY_MAX_EVENTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ECONOMY_MAX_EVENTS: %w", err)
		}
		c.EconomyMaxEvents = n
	}
	if v := os.Getenv("ECONOMY_PATH"); v != "" {
		c.EconomyPath = v
	}
	if v := os.Getenv("AUTONOMY_STATE_PATH"); v != "" {
		c.AutonomyStatePath = v
	}
	if v := os.Getenv("AUTONOMY_EXPLAIN_PATH"); v != "" {
		c.AutonomyExplainPath = v
	}
	if v := os.Getenv("AUTONOMY_CYCLE_INTERVAL_SEC"); v != "" {
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			return fmt.Errorf("AUTONOMY_CYCLE_INTERVAL_SEC: %w", err)
		}
		c.AutonomyCycleInterval = d
	}
	if v := os.Getenv("ORCHESTRATOR_LEDGER_RETENTION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ORCHESTRATOR_LEDGER_RETENTION: %w", err)
		}
		c.OrchestratorLedgerRetention = n
	}
	if v := os.Getenv("ORCHESTRATOR_QUEUE_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ORCHESTRATOR_QUEUE_DEPTH: %w", err)
		}
		c.OrchestratorQueueDepth = n
	}
	if v := os.Getenv("ORCHESTRATOR_IDEMPOTENCY_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ORCHESTRATOR_IDEMPOTENCY_TTL: %w", err)
		}
		c.OrchestratorIdempotencyTTL = d
	}
	if v := os.Getenv("INTENT_HALF_LIFE_SEC"); v != "" {
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			return fmt.Errorf("INTENT_HALF_LIFE_SEC: %w", err)
		}
		c.IntentHalfLife = d
	}
	if v := os.Getenv("INTENT_FLOOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("INTENT_FLOOR: %w", err)
		}
		c.IntentFloor = f
	}
	if v := os.Getenv("EPE_MAX_FILES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EPE_MAX_FILES: %w", err)
		}
		c.EPEMaxFiles = n
	}
	if v := os.Getenv("EPE_SIM_TIMEOUT_SEC"); v != "" {
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			return fmt.Errorf("EPE_SIM_TIMEOUT_SEC: %w", err)
		}
		c.EPESimTimeout = d
	}
	if v := os.Getenv("EPE_AUTO_FREEZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EPE_AUTO_FREEZE: %w", err)
		}
		c.EPEAutoFreeze = n
	}
	if v := os.Getenv("EPE_POLICY_PATH"); v != "" {
		c.EPEPolicyPath = v
	}
	if v := os.Getenv("COGCORE_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("COGCORE_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("COGCORE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("COGCORE_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	return nil
}

// parseSecondsOrDuration accepts either a bare integer (seconds, matching
// the _SEC-suffixed env var names) or a Go duration string like "90s".
func parseSecondsOrDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// NewConfig builds a Config: defaults, then environment, then opts, then
// validation.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := defaultConfig()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, errs.New("config.NewConfig", "config", fmt.Errorf("%w: %v", errs.ErrInvalidConfiguration, err))
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, errs.New("config.NewConfig", "config", fmt.Errorf("%w: %v", errs.ErrInvalidConfiguration, err))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants across the fully-layered Config.
func (c *Config) Validate() error {
	if c.OrchestratorReserve <= 0 {
		return errs.New("config.Validate", "config", errs.ErrInvalidConfiguration).WithID("ORCHESTRATOR_RESERVE")
	}
	if c.IntentFloor < 0 || c.IntentFloor > 1 {
		return errs.New("config.Validate", "config", errs.ErrInvalidConfiguration).WithID("INTENT_FLOOR")
	}
	if c.EPEMaxFiles < 1 {
		return errs.New("config.Validate", "config", errs.ErrInvalidConfiguration).WithID("EPE_MAX_FILES")
	}
	if c.OrchestratorQueueDepth < 1 {
		return errs.New("config.Validate", "config", errs.ErrInvalidConfiguration).WithID("ORCHESTRATOR_QUEUE_DEPTH")
	}
	return nil
}
