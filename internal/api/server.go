// Package api is the HTTP ingress/egress surface: POST /v1/invoke,
// POST /v1/intents, the privileged POST /v1/economy/reset and
// POST /v1/tick, GET /v1/vitals and its websocket stream, and
// GET /metrics. Grounded on the teacher's core/tool.go HTTP handlers and
// core/middleware.go, using net/http with a hand-rolled mux rather than a
// framework, matching the teacher's style.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nouscore/cogcore/internal/autonomy"
	"github.com/nouscore/cogcore/internal/economy"
	"github.com/nouscore/cogcore/internal/envelope"
	"github.com/nouscore/cogcore/internal/evolution"
	"github.com/nouscore/cogcore/internal/intent"
	"github.com/nouscore/cogcore/internal/logging"
	"github.com/nouscore/cogcore/internal/observer"
	"github.com/nouscore/cogcore/internal/orchestrator"
)

// vitalsLedgerWindow mirrors the Autonomy Controller's Observe step
// window, so the vitals snapshot's senses match what the next cycle sees.
const vitalsLedgerWindow = 100

// Server wires every ingress dependency into a single *http.ServeMux.
type Server struct {
	orchestrator *orchestrator.Orchestrator
	intents      *intent.Stack
	economy      *economy.Manager
	evolution    *evolution.Engine
	controller   *autonomy.Controller
	metrics      *Metrics
	jwtSecret    string
	logger       logging.ComponentLogger

	upgrader websocket.Upgrader
}

// Config bundles the Server's construction-time dependencies.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Intents      *intent.Stack
	Economy      *economy.Manager
	Evolution    *evolution.Engine
	Controller   *autonomy.Controller
	Metrics      *Metrics
	JWTSecret    string
	Logger       logging.ComponentLogger
}

// New builds a Server and its routed *http.ServeMux.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Server{
		orchestrator: cfg.Orchestrator,
		intents:      cfg.Intents,
		economy:      cfg.Economy,
		evolution:    cfg.Evolution,
		controller:   cfg.Controller,
		metrics:      cfg.Metrics,
		jwtSecret:    cfg.JWTSecret,
		logger:       cfg.Logger.WithComponent("api"),
		upgrader:     websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

// Handler returns the fully-routed, logging-wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/invoke", s.handleInvoke)
	mux.HandleFunc("POST /v1/intents", s.handleAddIntent)
	mux.Handle("POST /v1/economy/reset", authMiddleware(s.jwtSecret, http.HandlerFunc(s.handleEconomyReset)))
	mux.Handle("POST /v1/tick", authMiddleware(s.jwtSecret, http.HandlerFunc(s.handleTick)))
	mux.HandleFunc("GET /v1/vitals", s.handleVitals)
	mux.HandleFunc("GET /v1/vitals/ws", s.handleVitalsWS)
	mux.HandleFunc("GET /v1/why/{id}", s.handleWhy)
	mux.HandleFunc("GET /v1/epe/report", s.handleEPEReport)
	mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(s.logger, mux)
}

type errorBody struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{ErrorCode: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleInvoke validates the request body against the envelope schema,
// decodes it, and runs it through the Orchestrator's invocation path. No
// caller intent is attached to an HTTP-originated envelope, so the Canon
// Evaluator's sovereignty gate is skipped (Invoke gates only when it is given
// an intent and IsHumanOrigin reports a populated Caller or context source).
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "failed to read body")
		return
	}
	if err := validateEnvelope(raw); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result := s.orchestrator.Invoke(r.Context(), env, nil)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

type addIntentRequest struct {
	Description string                 `json:"description"`
	Kind        intent.Kind            `json:"kind"`
	Priority    float64                `json:"priority"`
	Source      string                 `json:"source"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// handleAddIntent accepts an externally-proposed Intent onto the stack,
// per spec.md §2's Intent Stack input surface.
func (s *Server) handleAddIntent(w http.ResponseWriter, r *http.Request) {
	var req addIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.Description == "" || req.Kind == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "description and kind are required")
		return
	}

	added, isNew := s.intents.Add(intent.Intent{
		Description: req.Description,
		Kind:        req.Kind,
		Priority:    req.Priority,
		Source:      req.Source,
		Context:     req.Context,
	})
	writeJSON(w, http.StatusCreated, map[string]interface{}{"intent": added, "created": isNew})
}

// handleEconomyReset is privileged: it clears all accumulated spend/value
// history back to a fresh budget/reserve.
func (s *Server) handleEconomyReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Budget  float64 `json:"budget"`
		Reserve float64 `json:"reserve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.Reserve <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "reserve must be positive")
		return
	}
	principal, _ := principalFromContext(r)
	s.logger.Warn("economy reset", map[string]interface{}{"principal": principal, "budget": req.Budget, "reserve": req.Reserve})
	s.economy.Reset(req.Budget, req.Reserve)
	writeJSON(w, http.StatusOK, s.economy.Snapshot())
}

// handleTick is privileged: it forces one Autonomy Controller cycle
// out-of-band from the background scheduler, for operator-driven testing.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r)
	s.logger.Info("manual tick requested", map[string]interface{}{"principal": principal})

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := s.controller.RunCycle(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type heartbeat struct {
	Budget  float64        `json:"budget"`
	Reserve float64        `json:"reserve"`
	Status  string         `json:"status"`
	Trend   observer.Trend `json:"trend"`
}

type mind struct {
	CurrentIntent *intent.Intent `json:"current_intent"`
	StackDepth    int            `json:"stack_depth"`
	Focus         string         `json:"focus"`
}

type senses struct {
	PainScore       float64                     `json:"pain_score"`
	PressureSources []observer.PressureSource   `json:"pressure_sources"`
}

type sovereignty struct {
	LastRefusal *autonomy.ExplainRecord `json:"last_refusal"`
}

type economyVitals struct {
	TotalValue float64 `json:"total_value"`
	TotalSpent float64 `json:"total_spent"`
	ROI        float64 `json:"roi"`
}

type vitals struct {
	Heartbeat   heartbeat     `json:"heartbeat"`
	Mind        mind          `json:"mind"`
	Senses      senses        `json:"senses"`
	Sovereignty sovereignty   `json:"sovereignty"`
	Economy     economyVitals `json:"economy"`
}

func (s *Server) collectVitals() vitals {
	snap := s.economy.Snapshot()
	summary := observer.CollectSignals(s.orchestrator.RecentLedger(vitalsLedgerWindow))

	status := "critical"
	if snap.Budget > 10 {
		status = "surviving"
	}

	var current *intent.Intent
	focus := "idle"
	if top := s.intents.Top(); top != nil {
		current = top
		focus = string(top.Kind)
	}

	var lastRefusal *autonomy.ExplainRecord
	if s.controller != nil {
		lastRefusal = s.controller.LastRefusal()
	}

	roi := 0.0
	if snap.TotalSpent > 0 {
		roi = snap.TotalValue / snap.TotalSpent
	}

	return vitals{
		Heartbeat: heartbeat{
			Budget:  snap.Budget,
			Reserve: snap.Reserve,
			Status:  status,
			Trend:   summary.Trend,
		},
		Mind: mind{
			CurrentIntent: current,
			StackDepth:    s.intents.Len(),
			Focus:         focus,
		},
		Senses: senses{
			PainScore:       summary.PainScore,
			PressureSources: summary.PressureSources,
		},
		Sovereignty: sovereignty{LastRefusal: lastRefusal},
		Economy: economyVitals{
			TotalValue: snap.TotalValue,
			TotalSpent: snap.TotalSpent,
			ROI:        roi,
		},
	}
}

// handleVitals returns a single point-in-time read of budget, mind, senses
// and sovereignty state, per spec.md §6's GET /v1/vitals contract.
func (s *Server) handleVitals(w http.ResponseWriter, r *http.Request) {
	v := s.collectVitals()
	if s.metrics != nil {
		s.metrics.Observe(s.economy.Snapshot())
		s.metrics.SetHarmCounter(s.evolution.PolicyReport().HarmCounter)
		s.metrics.SetPainScore(v.Senses.PainScore)
	}
	writeJSON(w, http.StatusOK, v)
}

// handleVitalsWS upgrades to a websocket and pushes a vitals snapshot every
// second until the client disconnects.
func (s *Server) handleVitalsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("vitals websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.collectVitals()); err != nil {
				return
			}
		}
	}
}

// handleWhy surfaces the Causal Memory Layer's why() query over HTTP,
// reusing the "memory" tool's retrieve action through the Orchestrator so
// every code path (autonomy cycle and HTTP) shares accounting/logging.
func (s *Server) handleWhy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result := s.orchestrator.Invoke(r.Context(), envelope.Envelope{
		ToolName:  "memory",
		Domain:    "memory",
		Action:    "retrieve",
		RiskLevel: envelope.RiskLow,
		Context:   map[string]interface{}{"outcome_id": id},
	}, nil)
	writeJSON(w, http.StatusOK, result)
}

// handleEPEReport surfaces the Evolution Policy Engine's introspection
// report for operator review (spec.md §4.9's PolicyReport).
func (s *Server) handleEPEReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.evolution.PolicyReport())
}
