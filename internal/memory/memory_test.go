package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNodeAssignsIDAndDefaults(t *testing.T) {
	c := New()
	n, err := c.AddNode(Node{NodeType: Event, Content: "something happened"})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, 1.0, n.Confidence)
	assert.False(t, n.Timestamp.IsZero())
}

func TestAddEdgeRequiresBothEndpoints(t *testing.T) {
	c := New()
	a, _ := c.AddNode(Node{NodeType: Event, Content: "a"})

	_, err := c.AddEdge(Edge{FromNode: a.ID, ToNode: "missing", Confidence: 0.5})
	assert.Error(t, err)
}

func TestAddEdgeUpdatesBothEndpointsAtomically(t *testing.T) {
	c := New()
	a, _ := c.AddNode(Node{NodeType: Event, Content: "a"})
	b, _ := c.AddNode(Node{NodeType: Event, Content: "b"})

	_, err := c.AddEdge(Edge{FromNode: a.ID, ToNode: b.ID, Confidence: 0.9})
	require.NoError(t, err)

	effects := c.FindEffectsOf(a.ID)
	require.Len(t, effects, 1)
	assert.Equal(t, b.ID, effects[0].ID)

	causes := c.FindCausesOf(b.ID)
	require.Len(t, causes, 1)
	assert.Equal(t, a.ID, causes[0].ID)
}

// TestWhyScenario mirrors the S4 scenario: a session with two successful
// observations closed by a failing outcome produces a 2-deep why() chain
// whose confidence is the geometric mean of the observations'.
func TestWhyScenario(t *testing.T) {
	c := New()

	sessionID := "S"
	_, err := c.StartDecisionSession(sessionID, map[string]interface{}{"task": "demo", "source": "test"})
	require.NoError(t, err)

	_, err = c.RecordToolExecution(sessionID, "tool_a", nil, nil, 1.0, true)
	require.NoError(t, err)
	_, err = c.RecordToolExecution(sessionID, "tool_b", nil, nil, 1.0, true)
	require.NoError(t, err)

	outcomeID, err := c.RecordOutcome(sessionID, "outcome failed", false, nil)
	require.NoError(t, err)

	explanation := c.Why(outcomeID)
	require.Len(t, explanation.CausalChain, 2)
	for _, entry := range explanation.CausalChain {
		assert.Equal(t, 1, entry.Depth)
	}

	wantConfidence := 0.9 // geometric mean of two 0.9-confidence OBSERVATION nodes
	assert.InDelta(t, wantConfidence, explanation.Confidence, 1e-9)
}

func TestRecordOutcomeLinksEveryObservationOfSession(t *testing.T) {
	c := New()
	sessionID := "S2"
	_, err := c.StartDecisionSession(sessionID, nil)
	require.NoError(t, err)

	o1, _ := c.RecordToolExecution(sessionID, "tool_a", nil, nil, 0, true)
	o2, _ := c.RecordToolExecution(sessionID, "tool_b", nil, nil, 0, true)

	outcomeID, err := c.RecordOutcome(sessionID, "done", true, nil)
	require.NoError(t, err)

	causes := c.FindCausesOf(outcomeID)
	ids := []string{causes[0].ID, causes[1].ID}
	assert.Contains(t, ids, o1)
	assert.Contains(t, ids, o2)
}

func TestExportImportRoundTrip(t *testing.T) {
	c := New()
	a, _ := c.AddNode(Node{NodeType: Event, Content: "a"})
	b, _ := c.AddNode(Node{NodeType: Event, Content: "b"})
	_, _ = c.AddEdge(Edge{FromNode: a.ID, ToNode: b.ID, Confidence: 0.7})

	exported := c.ExportAll()

	restored := New()
	restored.Import(exported)

	reExported := restored.ExportAll()
	assert.Equal(t, exported.Nodes, reExported.Nodes)
	assert.Equal(t, exported.Edges, reExported.Edges)
}

// TestWhatChangedScenario mirrors S5: 5 decisions in the first half of the
// interval, 12 in the second, should report a significant increase.
func TestWhatChangedScenario(t *testing.T) {
	c := New()
	t0 := time.Now().Add(-120 * time.Minute)
	mid := t0.Add(60 * time.Minute)
	t2 := mid.Add(60 * time.Minute)

	addDecisionsAt(t, c, t0, 60*time.Second, 5)
	addDecisionsAt(t, c, mid, 5*time.Second, 12)

	result := c.WhatChanged(t0, t2)
	require.Len(t, result.SignificantChanges, 1)
	change := result.SignificantChanges[0]
	assert.Equal(t, "decision_frequency", change.Type)
	assert.Equal(t, "increased", change.Change)
}

func addDecisionsAt(t *testing.T, c *CML, start time.Time, step time.Duration, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		_, err := c.AddNode(Node{
			NodeType:  Decision,
			Content:   "decision",
			Timestamp: start.Add(time.Duration(i) * step),
		})
		require.NoError(t, err)
	}
}

func TestFindFailurePatternsOnlyReturnsFailedOutcomes(t *testing.T) {
	c := New()
	sessionID := "fail-session"
	_, _ = c.StartDecisionSession(sessionID, nil)
	obsID, _ := c.RecordToolExecution(sessionID, "risky_tool", nil, nil, 0, false)
	_, err := c.RecordOutcome(sessionID, "it broke", false, nil)
	require.NoError(t, err)

	patterns := c.FindFailurePatterns()
	require.Len(t, patterns, 1)
	assert.Equal(t, "it broke", patterns[0].FailureDesc)
	assert.Contains(t, []string{obsID}, patterns[0].DirectCauses[0].ID)
}
