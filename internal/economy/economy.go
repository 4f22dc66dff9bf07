// Package economy implements the Economy: a never-blocking accounting and
// advisory layer over budget, spend, earned value and per-tool ROI.
// Ported from original_source's cortex/core/economy.py; see DESIGN.md.
package economy

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nouscore/cogcore/internal/envelope"
)

// Event is one accounting entry appended to the bounded events ring
// buffer, mirroring economy.py's _append_event payloads.
type Event struct {
	Kind       string    `json:"kind"` // "spend" | "value"
	Tool       string    `json:"tool,omitempty"`
	Cost       float64   `json:"cost,omitempty"`
	Failed     bool      `json:"failed,omitempty"`
	Value      float64   `json:"value,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Source     string    `json:"source,omitempty"`
	Realized   float64   `json:"realized,omitempty"`
	Timestamp  time.Time `json:"ts"`
}

// State is the serializable Economy State from spec.md §3.
type State struct {
	Budget               float64                  `json:"budget"`
	Reserve              float64                  `json:"reserve"`
	TotalSpent           float64                  `json:"total_spent"`
	TotalValue           float64                  `json:"total_value"`
	TotalEarnings        float64                  `json:"total_earnings"`
	ToolStats            map[string]envelope.Stats `json:"tool_stats"`
	Events               []Event                  `json:"events"`
	LastTick             time.Time                `json:"last_tick"`
	LastEarningTimestamp time.Time                `json:"last_earning_timestamp"`
}

// Snapshot is State plus the derived metrics spec.md §4.5 requires.
type Snapshot struct {
	State
	NetPosition float64 `json:"net_position"`
	ROIRatio    float64 `json:"roi_ratio"`
	EarningRate float64 `json:"earning_rate"`
}

// Manager owns one Economy State behind a single mutation lock, with a
// snapshot-then-offload background writer (spec.md §4.5, §5).
type Manager struct {
	mu        sync.Mutex
	state     State
	path      string
	maxEvents int

	writeCh chan State
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Manager, loading prior state from path if present and
// starting its single background writer goroutine.
func New(path string, defaultBudget, defaultReserve float64, maxEvents int) *Manager {
	m := &Manager{
		path:      path,
		maxEvents: maxEvents,
		writeCh:   make(chan State, 1),
		closeCh:   make(chan struct{}),
	}
	m.state = m.load(defaultBudget, defaultReserve)
	m.wg.Add(1)
	go m.writerLoop()
	return m
}

func (m *Manager) load(defaultBudget, defaultReserve float64) State {
	now := time.Now()
	data, err := os.ReadFile(m.path)
	if err != nil {
		return State{
			Budget:               defaultBudget,
			Reserve:              defaultReserve,
			ToolStats:            make(map[string]envelope.Stats),
			LastTick:             now,
			LastEarningTimestamp: now,
		}
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{
			Budget:               defaultBudget,
			Reserve:              defaultReserve,
			ToolStats:            make(map[string]envelope.Stats),
			LastTick:             now,
			LastEarningTimestamp: now,
		}
	}
	if s.ToolStats == nil {
		s.ToolStats = make(map[string]envelope.Stats)
	}
	return s
}

// writerLoop is the single background writer: it drains writeCh (depth
// 1, newest snapshot wins over a pending one) and performs an atomic
// temp+rename write. The hot path never waits on this goroutine.
func (m *Manager) writerLoop() {
	defer m.wg.Done()
	for {
		select {
		case s := <-m.writeCh:
			m.flush(s)
		case <-m.closeCh:
			// Drain any final pending snapshot before exiting.
			select {
			case s := <-m.writeCh:
				m.flush(s)
			default:
			}
			return
		}
	}
}

func (m *Manager) flush(s State) {
	if m.path == "" {
		return
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return
		}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, m.path)
}

// saveLocked snapshots state under the lock and offloads the write;
// called with mu held. A newer snapshot replaces a not-yet-flushed one.
func (m *Manager) saveLocked() {
	snapshot := m.state
	snapshot.ToolStats = cloneStats(m.state.ToolStats)
	snapshot.Events = append([]Event(nil), m.state.Events...)

	select {
	case <-m.writeCh:
	default:
	}
	select {
	case m.writeCh <- snapshot:
	default:
	}
}

func cloneStats(in map[string]envelope.Stats) map[string]envelope.Stats {
	out := make(map[string]envelope.Stats, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Close stops the background writer after flushing any pending snapshot.
func (m *Manager) Close() {
	close(m.closeCh)
	m.wg.Wait()
}

// Tick regenerates budget at a fixed rate (0.167% of reserve per whole
// minute elapsed; a partial minute carries over to the next tick), clamped
// to reserve. It is the only method that reads wall-clock.
func (m *Manager) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickLocked()
}

func (m *Manager) tickLocked() {
	now := time.Now()
	elapsedMin := math.Floor(now.Sub(m.state.LastTick).Minutes())
	if elapsedMin < 1 {
		return
	}
	regen := m.state.Reserve * 0.00167 * elapsedMin
	m.state.Budget = min(m.state.Budget+regen, m.state.Reserve)
	m.state.LastTick = m.state.LastTick.Add(time.Duration(elapsedMin) * time.Minute)
}

func (m *Manager) appendEventLocked(e Event) {
	m.state.Events = append(m.state.Events, e)
	if len(m.state.Events) > m.maxEvents {
		m.state.Events = m.state.Events[len(m.state.Events)-m.maxEvents:]
	}
}

// Spend always succeeds: budget -= cost; total_spent += cost; updates
// Tool Stats if toolName is non-empty. Never blocks, never refuses.
func (m *Manager) Spend(cost float64, toolName string, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tickLocked()
	m.state.Budget -= cost
	m.state.TotalSpent += cost

	if toolName != "" {
		stats := m.state.ToolStats[toolName]
		stats.TotalSpent += cost
		stats.Calls++
		if failed {
			stats.Failures++
		}
		m.state.ToolStats[toolName] = stats
	}

	m.appendEventLocked(Event{Kind: "spend", Tool: toolName, Cost: cost, Failed: failed, Timestamp: time.Now()})
	m.saveLocked()
}

// RecordValue credits budget += value*confidence and total_earnings +=
// value*confidence when positive; total_value always accrues the raw
// value.
func (m *Manager) RecordValue(value, confidence float64, source, toolName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.TotalValue += value

	if toolName != "" {
		stats := m.state.ToolStats[toolName]
		stats.TotalValue += value
		m.state.ToolStats[toolName] = stats
	}

	realized := value * confidence
	if realized > 0 {
		m.state.Budget += realized
		m.state.TotalEarnings += realized
		m.state.LastEarningTimestamp = time.Now()
	}

	m.appendEventLocked(Event{
		Kind: "value", Tool: toolName, Value: value, Confidence: confidence,
		Source: source, Realized: realized, Timestamp: time.Now(),
	})
	m.saveLocked()
}

// CheckBudget always returns true (spec.md invariant 5: never-block
// property). It ticks as a side effect, matching the Python contract.
func (m *Manager) CheckBudget(priority float64) bool {
	m.Tick()
	return true
}

// ShouldThrottle returns true only in catastrophic cases: calls>50 and
// error_rate>0.9, or total_spent>100 and roi<0.01. Advisory only — never
// consulted by the Decider's will score (Open Question 3).
func (m *Manager) ShouldThrottle(toolName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.state.ToolStats[toolName]
	if stats.Calls > 50 && stats.ErrorRate() > 0.9 {
		return true
	}
	if stats.TotalSpent > 100.0 && stats.ROI() < 0.01 {
		return true
	}
	return false
}

// ToolStats returns a copy of toolName's accumulated stats.
func (m *Manager) ToolStats(toolName string) envelope.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ToolStats[toolName]
}

// Snapshot ticks, then returns State plus derived net_position,
// roi_ratio and earning_rate.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickLocked()

	denomSpent := m.state.TotalSpent
	if denomSpent < 1.0 {
		denomSpent = 1.0
	}
	sinceEarning := time.Since(m.state.LastEarningTimestamp).Seconds()
	if sinceEarning < 1.0 {
		sinceEarning = 1.0
	}

	return Snapshot{
		State:       m.stateCopyLocked(),
		NetPosition: m.state.TotalEarnings - m.state.TotalSpent,
		ROIRatio:    m.state.TotalValue / denomSpent,
		EarningRate: m.state.TotalEarnings / sinceEarning,
	}
}

func (m *Manager) stateCopyLocked() State {
	return State{
		Budget:               m.state.Budget,
		Reserve:              m.state.Reserve,
		TotalSpent:           m.state.TotalSpent,
		TotalValue:           m.state.TotalValue,
		TotalEarnings:        m.state.TotalEarnings,
		ToolStats:            cloneStats(m.state.ToolStats),
		Events:               append([]Event(nil), m.state.Events...),
		LastTick:             m.state.LastTick,
		LastEarningTimestamp: m.state.LastEarningTimestamp,
	}
}

// Reset reinitializes the Economy to the given budget/reserve, clearing
// spend/value history. Used by the privileged POST /v1/economy/reset route.
func (m *Manager) Reset(budget, reserve float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.state = State{
		Budget:               budget,
		Reserve:              reserve,
		ToolStats:            make(map[string]envelope.Stats),
		LastTick:             now,
		LastEarningTimestamp: now,
	}
	m.saveLocked()
}
