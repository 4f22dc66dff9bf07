// Package orchestrator implements the Tool Registry & Orchestrator: the
// sole execution path for tool invocations, enforcing idempotency,
// deadlines, backpressure and accounting. Grounded on the 8-step
// invocation algorithm of spec.md §4.1 and teacher core/tool.go's
// capability-registry shape; the idempotency cache adapts teacher
// core/schema_cache.go's Option pattern onto go.etcd.io/bbolt.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/time/rate"

	"github.com/nouscore/cogcore/internal/canon"
	"github.com/nouscore/cogcore/internal/economy"
	"github.com/nouscore/cogcore/internal/envelope"
	"github.com/nouscore/cogcore/internal/intent"
	"github.com/nouscore/cogcore/internal/logging"
	"github.com/nouscore/cogcore/internal/telemetry"
)

// Tool is the capability interface every registered tool implements —
// spec.md §9's Design Note replacing the source's dynamically-dispatched
// IPPOC_Tool base class with a two-method interface and no inheritance.
type Tool interface {
	Name() string
	Domain() string
	EstimateCost(env envelope.Envelope) float64
	Execute(ctx context.Context, env envelope.Envelope) envelope.Result
}

var idempotencyBucket = []byte("idempotency")

// Orchestrator registers tools and is the sole path invocations travel.
type Orchestrator struct {
	mu    sync.RWMutex
	tools map[string]Tool

	economy *economy.Manager
	logger  logging.ComponentLogger
	tel     telemetry.Telemetry

	idempotencyDB  *bolt.DB
	idempotencyTTL time.Duration

	limiter    *rate.Limiter
	queueDepth int
	inflight   chan struct{}

	ledgerMu   sync.Mutex
	ledger     []envelope.LedgerRecord
	ledgerCap  int
	ledgerPath string
	ledgerCh   chan envelope.LedgerRecord
}

// Config bundles the orchestrator's construction-time dependencies.
type Config struct {
	Economy           *economy.Manager
	Logger            logging.ComponentLogger
	Telemetry         telemetry.Telemetry
	IdempotencyDBPath string
	IdempotencyTTL    time.Duration
	QueueDepth        int
	LedgerRetention   int
	LedgerPath        string
}

// New opens the idempotency store and starts the ledger's background
// flush consumer.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.NoOp{}
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	if cfg.LedgerRetention <= 0 {
		cfg.LedgerRetention = 5000
	}

	var db *bolt.DB
	if cfg.IdempotencyDBPath != "" {
		if dir := filepath.Dir(cfg.IdempotencyDBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("orchestrator: idempotency dir: %w", err)
			}
		}
		var err error
		db, err = bolt.Open(cfg.IdempotencyDBPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("orchestrator: open idempotency db: %w", err)
		}
		if err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(idempotencyBucket)
			return err
		}); err != nil {
			return nil, fmt.Errorf("orchestrator: create idempotency bucket: %w", err)
		}
	}

	o := &Orchestrator{
		tools:          make(map[string]Tool),
		economy:        cfg.Economy,
		logger:         cfg.Logger.WithComponent("core/orchestrator"),
		tel:            cfg.Telemetry,
		idempotencyDB:  db,
		idempotencyTTL: cfg.IdempotencyTTL,
		limiter:        rate.NewLimiter(rate.Limit(cfg.QueueDepth), cfg.QueueDepth),
		queueDepth:     cfg.QueueDepth,
		inflight:       make(chan struct{}, cfg.QueueDepth),
		ledgerCap:      cfg.LedgerRetention,
		ledgerPath:     cfg.LedgerPath,
		ledgerCh:       make(chan envelope.LedgerRecord, cfg.LedgerRetention),
	}

	go o.ledgerFlushLoop()

	return o, nil
}

// Close releases the idempotency store.
func (o *Orchestrator) Close() error {
	if o.idempotencyDB != nil {
		return o.idempotencyDB.Close()
	}
	return nil
}

// Register adds a tool to the registry, keyed by its declared name.
func (o *Orchestrator) Register(tool Tool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tools[tool.Name()] = tool
}

type cachedResult struct {
	Result    envelope.Result `json:"result"`
	StoredAt  time.Time       `json:"stored_at"`
}

// Invoke runs the 8-step invocation algorithm of spec.md §4.1 and is the
// sole execution path for tool invocations.
func (o *Orchestrator) Invoke(ctx context.Context, env envelope.Envelope, callerIntent *intent.Intent) (finalResult envelope.Result) {
	start := time.Now()

	ctx, span := o.tel.StartSpan(ctx, "orchestrator.invoke")
	span.SetAttribute("tool_name", env.ToolName)
	span.SetAttribute("domain", env.Domain)
	span.SetAttribute("action", env.Action)
	if env.TraceID != "" {
		span.SetAttribute("trace_id", env.TraceID)
	}
	defer func() {
		if !finalResult.Success {
			span.RecordError(errors.New(string(finalResult.ErrorCode)))
		}
		span.End()
	}()

	// 1. Validate.
	o.mu.RLock()
	tool, ok := o.tools[env.ToolName]
	o.mu.RUnlock()
	if !ok {
		return envelope.Failure(envelope.ErrorInvalidRequest, fmt.Sprintf("unknown tool %q", env.ToolName))
	}
	if env.Domain == "" || env.Action == "" {
		return envelope.Failure(envelope.ErrorInvalidRequest, "envelope missing domain or action")
	}
	switch env.RiskLevel {
	case envelope.RiskLow, envelope.RiskMedium, envelope.RiskHigh:
	default:
		return envelope.Failure(envelope.ErrorInvalidRequest, fmt.Sprintf("unrecognized risk_level %q", env.RiskLevel))
	}

	// Backpressure: priority-less invocations compete for a reserved
	// slot; priority-bearing invocations always enqueue (spec.md §5).
	if env.Priority == nil {
		if !o.limiter.Allow() {
			return envelope.Failure(envelope.ErrorOverloaded, "orchestrator queue saturated")
		}
	}

	// 2. Idempotency.
	if idemID, ok := env.IdempotencyID(); ok {
		if cached, found := o.lookupIdempotent(idemID); found {
			return cached
		}
	}

	// 3. Cost estimate.
	estimated := env.EstimatedCost
	if toolEstimate := tool.EstimateCost(env); toolEstimate > estimated {
		estimated = toolEstimate
	}

	// 4. Deadline.
	execCtx := ctx
	var cancel context.CancelFunc
	if env.DeadlineMS > 0 {
		execCtx, cancel = context.WithTimeout(ctx, time.Duration(env.DeadlineMS)*time.Millisecond)
		defer cancel()
	}

	// 5. Canon check, gated on human/user-originated intents.
	if callerIntent != nil && env.IsHumanOrigin() {
		if canon.IsSovereigntyViolation(callerIntent) {
			o.logger.Info("refused invocation on sovereignty violation", map[string]interface{}{
				"tool": env.ToolName, "intent_id": callerIntent.ID,
			})
			return envelope.Failure(envelope.ErrorCanonViolation, "intent fails sovereignty test")
		}
	}

	// 6. Execute, converting panics to TOOL_CRASH per spec.md §7.
	result := o.executeSafely(execCtx, tool, env)

	// Deadline expiry takes precedence over a tool's own failure report.
	if execCtx.Err() == context.DeadlineExceeded {
		result = envelope.Failure(envelope.ErrorTimeout, "deadline exceeded")
	}

	// 7. Accounting.
	costSpent := result.CostSpent
	if costSpent == 0 {
		costSpent = estimated
	}
	if o.economy != nil {
		o.economy.Spend(costSpent, env.ToolName, !result.Success)
	}

	status := envelope.LedgerCompleted
	switch {
	case execCtx.Err() == context.DeadlineExceeded:
		status = envelope.LedgerTimedOut
	case execCtx.Err() == context.Canceled:
		status = envelope.LedgerCancelled
	case !result.Success:
		status = envelope.LedgerFailed
	}

	finished := time.Now()
	o.appendLedger(envelope.LedgerRecord{
		EnvelopeDigest: digestEnvelope(env),
		ToolName:       env.ToolName,
		Action:         env.Action,
		Status:         status,
		CostSpent:      costSpent,
		DurationMS:     finished.Sub(start).Milliseconds(),
		StartedAt:      start,
		FinishedAt:     finished,
	})

	if idemID, ok := env.IdempotencyID(); ok {
		o.storeIdempotent(idemID, result)
	}

	// 8. Return Result.
	return result
}

func (o *Orchestrator) executeSafely(ctx context.Context, tool Tool, env envelope.Envelope) (result envelope.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = envelope.Failure(envelope.ErrorToolCrash, fmt.Sprintf("tool panicked: %v", r))
		}
	}()
	return tool.Execute(ctx, env)
}

func digestEnvelope(env envelope.Envelope) string {
	data, _ := json.Marshal(env)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (o *Orchestrator) lookupIdempotent(idemID string) (envelope.Result, bool) {
	if o.idempotencyDB == nil {
		return envelope.Result{}, false
	}
	var cached cachedResult
	found := false
	_ = o.idempotencyDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(idempotencyBucket)
		data := b.Get([]byte(idemID))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &cached); err != nil {
			return nil
		}
		found = true
		return nil
	})
	if !found {
		return envelope.Result{}, false
	}
	if o.idempotencyTTL > 0 && time.Since(cached.StoredAt) > o.idempotencyTTL {
		return envelope.Result{}, false
	}
	return cached.Result, true
}

func (o *Orchestrator) storeIdempotent(idemID string, result envelope.Result) {
	if o.idempotencyDB == nil {
		return
	}
	data, err := json.Marshal(cachedResult{Result: result, StoredAt: time.Now()})
	if err != nil {
		return
	}
	_ = o.idempotencyDB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(idempotencyBucket).Put([]byte(idemID), data)
	})
}

func (o *Orchestrator) appendLedger(rec envelope.LedgerRecord) {
	o.ledgerMu.Lock()
	o.ledger = append(o.ledger, rec)
	if len(o.ledger) > o.ledgerCap {
		o.ledger = o.ledger[len(o.ledger)-o.ledgerCap:]
	}
	o.ledgerMu.Unlock()

	select {
	case o.ledgerCh <- rec:
	default:
	}
}

// RecentLedger returns up to n most-recent ledger records, newest first.
func (o *Orchestrator) RecentLedger(n int) []envelope.LedgerRecord {
	o.ledgerMu.Lock()
	defer o.ledgerMu.Unlock()

	if n > len(o.ledger) {
		n = len(o.ledger)
	}
	out := make([]envelope.LedgerRecord, n)
	for i := 0; i < n; i++ {
		out[i] = o.ledger[len(o.ledger)-1-i]
	}
	return out
}

// Subscribe returns the ledger fanout channel the Observer reads from —
// the file writer is a separate consumer of the same channel, never the
// Observer's source of truth (spec.md §9 Design Note).
func (o *Orchestrator) Subscribe() <-chan envelope.LedgerRecord {
	return o.ledgerCh
}

// ledgerFlushLoop is the JSON-lines file writer consumer.
func (o *Orchestrator) ledgerFlushLoop() {
	if o.ledgerPath == "" {
		return
	}
	if dir := filepath.Dir(o.ledgerPath); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(o.ledgerPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		o.logger.Error("failed to open ledger file", map[string]interface{}{"error": err.Error()})
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for rec := range o.ledgerCh {
		if err := enc.Encode(rec); err != nil {
			o.logger.Error("failed to write ledger record", map[string]interface{}{"error": err.Error()})
		}
	}
}

// BudgetSnapshot exposes the Economy's snapshot, matching the
// Orchestrator's get_budget() contract (spec.md §4.1).
func (o *Orchestrator) BudgetSnapshot() economy.Snapshot {
	return o.economy.Snapshot()
}
