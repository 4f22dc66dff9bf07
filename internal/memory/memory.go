// Package memory implements the Causal Memory Layer (CML): an
// append-only arena of nodes and edges with id/timestamp/type indexes,
// why()/what_changed() queries, and decision-session bracketing. Ported
// from original_source's mnemosyne tcml.py and causal_tracker.py; see
// DESIGN.md for where this implementation deliberately narrows the
// session-edge rule to observations only, matching spec.md §4.6 and its
// S4 scenario.
package memory

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// NodeType is the closed tagged variant of a Memory Node.
type NodeType string

const (
	Event       NodeType = "EVENT"
	Decision    NodeType = "DECISION"
	Observation NodeType = "OBSERVATION"
	Outcome     NodeType = "OUTCOME"
)

// Node is one append-only entry in the arena.
type Node struct {
	ID          string                 `json:"id"`
	NodeType    NodeType               `json:"node_type"`
	Timestamp   time.Time              `json:"timestamp"`
	Content     string                 `json:"content"`
	Source      string                 `json:"source"`
	Confidence  float64                `json:"confidence"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Causes      []string               `json:"causes,omitempty"`
	Effects     []string               `json:"effects,omitempty"`
	RegretLevel *float64               `json:"regret_level,omitempty"`
}

// Edge is a cause-effect relationship between two node ids.
type Edge struct {
	ID         string                 `json:"id"`
	FromNode   string                 `json:"from_node"`
	ToNode     string                 `json:"to_node"`
	Confidence float64                `json:"confidence"`
	LatencyMS  *int64                 `json:"latency_ms,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// ChainEntry is one hop in a why() causal chain.
type ChainEntry struct {
	Node    string   `json:"node"`
	Type    NodeType `json:"type"`
	Content string   `json:"content"`
	Depth   int      `json:"depth"`
}

// Explanation is the result of a why() query.
type Explanation struct {
	Outcome       string       `json:"outcome"`
	DirectCauses  []string     `json:"direct_causes"`
	CausalChain   []ChainEntry `json:"causal_chain"`
	Confidence    float64      `json:"confidence"`
}

// SignificantChange is one entry in what_changed()'s result.
type SignificantChange struct {
	Type        string  `json:"type"`
	Change      string  `json:"change"` // "increased" | "decreased"
	Ratio       float64 `json:"ratio"`
	Description string  `json:"description"`
}

// WhatChanged is the result of a what_changed() query.
type WhatChanged struct {
	PeriodStart         time.Time           `json:"period_start"`
	PeriodEnd           time.Time           `json:"period_end"`
	NewDecisions        []NodeSummary       `json:"new_decisions"`
	NewOutcomes         []NodeSummary       `json:"new_outcomes"`
	SignificantChanges  []SignificantChange `json:"significant_changes"`
}

// NodeSummary is the {id, content} projection used in WhatChanged.
type NodeSummary struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type session struct {
	decisionID   string
	observations []string
}

// CML owns the arena and all indexes. Single writer per session; readers
// work off a snapshot of the indexes (spec.md §5).
type CML struct {
	mu sync.RWMutex

	nodes    []Node
	nodeIdx  map[string]int // id -> index in nodes
	typeIdx  map[NodeType][]string

	edges []Edge

	sessions map[string]*session
}

// New returns an empty CML.
func New() *CML {
	return &CML{
		nodeIdx:  make(map[string]int),
		typeIdx:  make(map[NodeType][]string),
		sessions: make(map[string]*session),
	}
}

// newID mirrors the original's "<type>_<random>" convention.
func newID(prefix string) string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(buf))
}

func typePrefix(t NodeType) string {
	switch t {
	case Decision:
		return "decision"
	case Observation:
		return "tool"
	case Outcome:
		return "outcome"
	default:
		return "event"
	}
}

// AddNode validates id uniqueness, assigns one if unset, and updates all
// three indexes atomically.
func (c *CML) AddNode(n Node) (Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n.ID == "" {
		n.ID = newID(typePrefix(n.NodeType))
	}
	if _, exists := c.nodeIdx[n.ID]; exists {
		return Node{}, fmt.Errorf("memory: node id %q already exists", n.ID)
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	if n.Confidence == 0 {
		n.Confidence = 1.0
	}

	c.nodes = append(c.nodes, n)
	idx := len(c.nodes) - 1
	c.nodeIdx[n.ID] = idx
	c.typeIdx[n.NodeType] = append(c.typeIdx[n.NodeType], n.ID)

	return c.nodes[idx], nil
}

// AddEdge validates both endpoints exist and mutates them under the same
// critical section as the edge insertion.
func (c *CML) AddEdge(e Edge) (Edge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fromIdx, fromOK := c.nodeIdx[e.FromNode]
	toIdx, toOK := c.nodeIdx[e.ToNode]
	if !fromOK || !toOK {
		return Edge{}, fmt.Errorf("memory: edge endpoint missing (from=%v to=%v)", fromOK, toOK)
	}
	if e.ID == "" {
		e.ID = newID("edge")
	}

	c.edges = append(c.edges, e)

	if !contains(c.nodes[fromIdx].Effects, e.ToNode) {
		c.nodes[fromIdx].Effects = append(c.nodes[fromIdx].Effects, e.ToNode)
	}
	if !contains(c.nodes[toIdx].Causes, e.FromNode) {
		c.nodes[toIdx].Causes = append(c.nodes[toIdx].Causes, e.FromNode)
	}

	return e, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// FindBefore returns nodes strictly before t, most recent first,
// optionally filtered to nodeType.
func (c *CML) FindBefore(t time.Time, nodeType *NodeType) []Node {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Node
	for _, n := range c.nodes {
		if n.Timestamp.Before(t) && (nodeType == nil || n.NodeType == *nodeType) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// FindAfter returns nodes strictly after t, oldest first, optionally
// filtered to nodeType.
func (c *CML) FindAfter(t time.Time, nodeType *NodeType) []Node {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Node
	for _, n := range c.nodes {
		if n.Timestamp.After(t) && (nodeType == nil || n.NodeType == *nodeType) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// FindCausesOf returns the nodes listed in id's Causes.
func (c *CML) FindCausesOf(id string) []Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lookupLocked(c.nodeCausesLocked(id))
}

func (c *CML) nodeCausesLocked(id string) []string {
	idx, ok := c.nodeIdx[id]
	if !ok {
		return nil
	}
	return c.nodes[idx].Causes
}

// FindEffectsOf returns the nodes listed in id's Effects.
func (c *CML) FindEffectsOf(id string) []Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.nodeIdx[id]
	if !ok {
		return nil
	}
	return c.lookupLocked(c.nodes[idx].Effects)
}

func (c *CML) lookupLocked(ids []string) []Node {
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		if idx, ok := c.nodeIdx[id]; ok {
			out = append(out, c.nodes[idx])
		}
	}
	return out
}

// chainQueueItem is a (node, depth) pair used by Why's BFS frontier.
type chainQueueItem struct {
	node  Node
	depth int
}

// Why performs a breadth-first traversal from outcomeID over Causes,
// returning an ordered chain and the geometric-mean confidence of the
// nodes visited.
func (c *CML) Why(outcomeID string) Explanation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	directCauses := c.nodeCausesLocked(outcomeID)
	exp := Explanation{Outcome: outcomeID, DirectCauses: append([]string(nil), directCauses...)}

	var queue []chainQueueItem
	for _, n := range c.lookupLocked(directCauses) {
		queue = append(queue, chainQueueItem{node: n, depth: 1})
	}

	visited := make(map[string]bool)
	var chain []ChainEntry
	var confidences []float64

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if visited[item.node.ID] {
			continue
		}
		visited[item.node.ID] = true

		chain = append(chain, ChainEntry{
			Node: item.node.ID, Type: item.node.NodeType,
			Content: item.node.Content, Depth: item.depth,
		})
		confidences = append(confidences, item.node.Confidence)

		for _, upstream := range c.lookupLocked(item.node.Causes) {
			queue = append(queue, chainQueueItem{node: upstream, depth: item.depth + 1})
		}
	}

	exp.CausalChain = chain
	exp.Confidence = geometricMean(confidences)
	return exp
}

func geometricMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	product := 1.0
	for _, v := range values {
		product *= v
	}
	return math.Pow(product, 1.0/float64(len(values)))
}

// WhatChanged detects decision-frequency shifts between the [start,mid)
// and [mid,end] halves of [start,end], where mid is the interval
// midpoint — bounding both windows to the queried interval so equal
// duration windows compare meaningfully, matching spec.md's S5 scenario.
func (c *CML) WhatChanged(start, end time.Time) WhatChanged {
	c.mu.RLock()
	defer c.mu.RUnlock()

	mid := start.Add(end.Sub(start) / 2)

	var before, after []Node
	for _, n := range c.nodes {
		if !n.Timestamp.Before(start) && n.Timestamp.Before(mid) {
			before = append(before, n)
		} else if !n.Timestamp.Before(mid) && !n.Timestamp.After(end) {
			after = append(after, n)
		}
	}

	var newDecisions, newOutcomes []NodeSummary
	for _, n := range after {
		switch n.NodeType {
		case Decision:
			newDecisions = append(newDecisions, NodeSummary{ID: n.ID, Content: n.Content})
		case Outcome:
			newOutcomes = append(newOutcomes, NodeSummary{ID: n.ID, Content: n.Content})
		}
	}

	return WhatChanged{
		PeriodStart:        start,
		PeriodEnd:          end,
		NewDecisions:       newDecisions,
		NewOutcomes:        newOutcomes,
		SignificantChanges: detectSignificantChanges(before, after),
	}
}

func detectSignificantChanges(before, after []Node) []SignificantChange {
	beforeDecisions := filterType(before, Decision)
	afterDecisions := filterType(after, Decision)

	if len(beforeDecisions) == 0 || len(afterDecisions) == 0 {
		return nil
	}

	beforeSpan := math.Max(1, beforeDecisions[len(beforeDecisions)-1].Timestamp.Sub(beforeDecisions[0].Timestamp).Seconds())
	afterSpan := math.Max(1, afterDecisions[len(afterDecisions)-1].Timestamp.Sub(afterDecisions[0].Timestamp).Seconds())

	beforeFreq := float64(len(beforeDecisions)) / beforeSpan
	afterFreq := float64(len(afterDecisions)) / afterSpan

	var ratio float64
	if beforeFreq > 0 {
		ratio = afterFreq / beforeFreq
	} else {
		ratio = math.Inf(1)
	}

	if ratio <= 2.0 && ratio >= 0.5 {
		return nil
	}

	change := "increased"
	if ratio < 1 {
		change = "decreased"
	}
	verb := "accelerated"
	if change == "decreased" {
		verb = "slowed"
	}

	return []SignificantChange{{
		Type:   "decision_frequency",
		Change: change,
		Ratio:  ratio,
		Description: fmt.Sprintf("Decision making %s by %.1f%%", verb, math.Abs(ratio-1)*100),
	}}
}

func filterType(nodes []Node, t NodeType) []Node {
	var out []Node
	for _, n := range nodes {
		if n.NodeType == t {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// StartDecisionSession opens a bracketed reasoning episode, adding a
// DECISION node and returning its id.
func (c *CML) StartDecisionSession(sessionID string, context map[string]interface{}) (string, error) {
	task, _ := context["task"].(string)
	if task == "" {
		task = "unknown"
	}
	source, _ := context["source"].(string)
	if source == "" {
		source = "unknown"
	}

	node, err := c.AddNode(Node{
		NodeType: Decision,
		Content:  fmt.Sprintf("Decision session started: %s", task),
		Source:   source,
		Metadata: map[string]interface{}{"session_id": sessionID, "context": context, "status": "started"},
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.sessions[sessionID] = &session{decisionID: node.ID}
	c.mu.Unlock()

	return node.ID, nil
}

// RecordToolExecution adds an OBSERVATION node for one tool invocation
// within sessionID, queuing it to be linked to the eventual OUTCOME.
func (c *CML) RecordToolExecution(sessionID, toolName string, input, result map[string]interface{}, cost float64, success bool) (string, error) {
	status := "FAILED"
	confidence := 0.7
	if success {
		status = "SUCCESS"
		confidence = 0.9
	}

	node, err := c.AddNode(Node{
		NodeType:   Observation,
		Content:    fmt.Sprintf("Executed %s: %s", toolName, status),
		Source:     "tool_orchestrator",
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"tool_name": toolName, "input": input, "result": result,
			"cost": cost, "success": success, "session_id": sessionID,
		},
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if s, ok := c.sessions[sessionID]; ok {
		s.observations = append(s.observations, node.ID)
	}
	c.mu.Unlock()

	return node.ID, nil
}

// RecordOutcome closes sessionID with an OUTCOME node, inserting a causal
// edge from every OBSERVATION recorded during the session at confidence
// 0.8 (spec.md §4.6).
func (c *CML) RecordOutcome(sessionID, desc string, success bool, metrics map[string]interface{}) (string, error) {
	regret := 0.0
	if !success {
		regret = 0.8
	}

	node, err := c.AddNode(Node{
		NodeType:    Outcome,
		Content:     desc,
		Source:      "evaluation",
		Confidence:  0.95,
		RegretLevel: &regret,
		Metadata: map[string]interface{}{
			"session_id": sessionID, "success": success, "metrics": metrics,
		},
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	var observations []string
	if ok {
		observations = append([]string(nil), s.observations...)
		delete(c.sessions, sessionID)
	}
	c.mu.Unlock()

	for _, obsID := range observations {
		if _, err := c.AddEdge(Edge{
			FromNode:   obsID,
			ToNode:     node.ID,
			Confidence: 0.8,
			Context:    map[string]interface{}{"session_id": sessionID},
		}); err != nil {
			return node.ID, err
		}
	}

	return node.ID, nil
}

// FailurePattern summarizes one recorded failure's direct causes.
type FailurePattern struct {
	FailureID     string        `json:"failure_id"`
	FailureDesc   string        `json:"failure_desc"`
	Timestamp     time.Time     `json:"timestamp"`
	DirectCauses  []NodeSummary `json:"direct_causes"`
	ToolsInvolved []string      `json:"tools_involved"`
}

// FindFailurePatterns returns up to the last 10 failed OUTCOMEs with
// their direct causes and the tools they implicate.
func (c *CML) FindFailurePatterns() []FailurePattern {
	c.mu.RLock()
	outcomeType := Outcome
	var failures []Node
	for _, n := range c.nodes {
		if n.NodeType != outcomeType {
			continue
		}
		if success, ok := n.Metadata["success"].(bool); ok && !success {
			failures = append(failures, n)
		}
	}
	c.mu.RUnlock()

	if len(failures) > 10 {
		failures = failures[len(failures)-10:]
	}

	var patterns []FailurePattern
	for _, f := range failures {
		causes := c.FindCausesOf(f.ID)
		pattern := FailurePattern{FailureID: f.ID, FailureDesc: f.Content, Timestamp: f.Timestamp}
		for _, cause := range causes {
			pattern.DirectCauses = append(pattern.DirectCauses, NodeSummary{ID: cause.ID, Content: cause.Content})
			if tool, ok := cause.Metadata["tool_name"].(string); ok {
				pattern.ToolsInvolved = append(pattern.ToolsInvolved, tool)
			}
		}
		patterns = append(patterns, pattern)
	}
	return patterns
}

// Export is the versioned JSON document form for CML import/export.
type Export struct {
	Version int    `json:"version"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

// ExportAll returns a lossless snapshot of every node and edge.
func (c *CML) ExportAll() Export {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Export{
		Version: 1,
		Nodes:   append([]Node(nil), c.nodes...),
		Edges:   append([]Edge(nil), c.edges...),
	}
}

// Import replaces the arena's contents with e, rebuilding indexes.
// Callers are responsible for ensuring no concurrent session is open.
func (c *CML) Import(e Export) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nodes = append([]Node(nil), e.Nodes...)
	c.edges = append([]Edge(nil), e.Edges...)
	c.nodeIdx = make(map[string]int, len(c.nodes))
	c.typeIdx = make(map[NodeType][]string)

	for i, n := range c.nodes {
		c.nodeIdx[n.ID] = i
		c.typeIdx[n.NodeType] = append(c.typeIdx[n.NodeType], n.ID)
	}
}
