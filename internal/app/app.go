// Package app wires every component into the running process: config,
// logging, telemetry, the Envelope/Intent/Canon/Trust/Economy/CML
// primitives, the Tool Orchestrator, the Evolution Policy Engine and the
// Autonomy Controller. Grounded on the teacher's NewServer/main.go
// construction order (core/server.go): build leaf dependencies first,
// then the components that depend on them, with no package-level
// singletons (spec.md §9 Design Note).
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/nouscore/cogcore/internal/api"
	"github.com/nouscore/cogcore/internal/autonomy"
	"github.com/nouscore/cogcore/internal/canon"
	"github.com/nouscore/cogcore/internal/config"
	"github.com/nouscore/cogcore/internal/economy"
	"github.com/nouscore/cogcore/internal/evolution"
	"github.com/nouscore/cogcore/internal/intent"
	"github.com/nouscore/cogcore/internal/logging"
	"github.com/nouscore/cogcore/internal/memory"
	"github.com/nouscore/cogcore/internal/orchestrator"
	"github.com/nouscore/cogcore/internal/telemetry"
	"github.com/nouscore/cogcore/internal/tools"
	"github.com/nouscore/cogcore/internal/trust"
)

// Core bundles every constructed dependency the CLI's subcommands operate
// on. There is exactly one Core per process; callers thread it explicitly
// rather than reaching for package state.
type Core struct {
	Config *config.Config
	Logger logging.ComponentLogger
	Tel    telemetry.Telemetry

	Intents      *intent.Stack
	Trust        *trust.Model
	Economy      *economy.Manager
	CML          *memory.CML
	Orchestrator *orchestrator.Orchestrator
	Evolution    *evolution.Engine
	Controller   *autonomy.Controller
	Metrics      *api.Metrics
	API          *api.Server
}

// New constructs a Core from cfg: every dependency is built once here and
// handed down, never looked up again.
func New(cfg *config.Config) (*Core, error) {
	zapBase, err := newZapLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("app: logger: %w", err)
	}
	logger := logging.New(zapBase)

	tp := sdktrace.NewTracerProvider()
	tel := telemetry.New(tp)

	intents := intent.New(intent.Config{
		HalfLife:  cfg.IntentHalfLife,
		Floor:     cfg.IntentFloor,
		StatePath: cfg.AutonomyStatePath,
	})
	if err := intents.Load(); err != nil {
		logger.Warn("failed to load intent stack snapshot", map[string]interface{}{"error": err.Error()})
	}

	trustModel := trust.New()
	econ := economy.New(cfg.EconomyPath, cfg.OrchestratorBudget, cfg.OrchestratorReserve, cfg.EconomyMaxEvents)
	cml := memory.New()

	orch, err := orchestrator.New(orchestrator.Config{
		Economy:           econ,
		Logger:            logger,
		Telemetry:         tel,
		IdempotencyDBPath: cfg.OrchestratorIdempotencyDB,
		IdempotencyTTL:    cfg.OrchestratorIdempotencyTTL,
		QueueDepth:        cfg.OrchestratorQueueDepth,
		LedgerRetention:   cfg.OrchestratorLedgerRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("app: orchestrator: %w", err)
	}

	evoEngine, err := evolution.New(cfg.EPEPolicyPath, ".", logger)
	if err != nil {
		return nil, fmt.Errorf("app: evolution engine: %w", err)
	}

	tools.RegisterAll(orch, econ, cml, evoEngine)

	controller := autonomy.New(autonomy.Config{
		Intents:      intents,
		Orchestrator: orch,
		CML:          cml,
		Trust:        trustModel,
		Economy:      econ,
		ExplainPath:  cfg.AutonomyExplainPath,
		Logger:       logger,
		Telemetry:    tel,
	})

	metrics := api.NewMetrics(prometheus.DefaultRegisterer)

	server := api.New(api.Config{
		Orchestrator: orch,
		Intents:      intents,
		Economy:      econ,
		Evolution:    evoEngine,
		Controller:   controller,
		Metrics:      metrics,
		JWTSecret:    cfg.JWTSecret,
		Logger:       logger,
	})

	return &Core{
		Config:       cfg,
		Logger:       logger,
		Tel:          tel,
		Intents:      intents,
		Trust:        trustModel,
		Economy:      econ,
		CML:          cml,
		Orchestrator: orch,
		Evolution:    evoEngine,
		Controller:   controller,
		Metrics:      metrics,
		API:          server,
	}, nil
}

// Close releases every background goroutine/handle a Core owns.
func (c *Core) Close() {
	c.Economy.Close()
	c.Orchestrator.Close()
	c.Evolution.Close()
}

// RunAutonomyLoop runs the Autonomy Controller's cycle on
// Config.AutonomyCycleInterval until ctx is cancelled.
func (c *Core) RunAutonomyLoop(ctx context.Context) {
	ticker := time.NewTicker(c.Config.AutonomyCycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Controller.RunCycle(ctx); err != nil {
				c.Logger.Error("autonomy cycle failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

func newZapLogger(level, format string) (*zap.Logger, error) {
	var zapCfg zap.Config
	if format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	if err := zapCfg.Level.UnmarshalText([]byte(level)); err != nil {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zapCfg.Build()
}
