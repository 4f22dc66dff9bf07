package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nouscore/cogcore/internal/economy"
	"github.com/nouscore/cogcore/internal/envelope"
	"github.com/nouscore/cogcore/internal/evolution"
	"github.com/nouscore/cogcore/internal/intent"
	"github.com/nouscore/cogcore/internal/orchestrator"
)

type echoTool struct{}

func (echoTool) Name() string                          { return "echo" }
func (echoTool) Domain() string                         { return "test" }
func (echoTool) EstimateCost(envelope.Envelope) float64 { return 0 }
func (echoTool) Execute(context.Context, envelope.Envelope) envelope.Result {
	return envelope.Result{Success: true, Output: "ok"}
}

func newTestServer(t *testing.T, jwtSecret string) *Server {
	t.Helper()
	econ := economy.New("", 100, 1000, 10)
	orch, err := orchestrator.New(orchestrator.Config{
		Economy:           econ,
		IdempotencyDBPath: filepath.Join(t.TempDir(), "idem.db"),
	})
	require.NoError(t, err)
	orch.Register(echoTool{})
	t.Cleanup(func() { orch.Close() })

	evo, err := evolution.New("", ".", nil)
	require.NoError(t, err)
	t.Cleanup(evo.Close)

	intents := intent.New(intent.Config{HalfLife: 0, Floor: 0.05})

	return New(Config{
		Orchestrator: orch,
		Intents:      intents,
		Economy:      econ,
		Evolution:    evo,
		JWTSecret:    jwtSecret,
	})
}

func TestHandleInvokeRejectsPayloadFailingSchema(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/v1/invoke", bytes.NewBufferString(`{"domain":"test"}`))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleInvokeRunsToolThroughOrchestrator(t *testing.T) {
	s := newTestServer(t, "")
	body := `{"tool_name":"echo","domain":"test","action":"run","risk_level":"low"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/invoke", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var result envelope.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
}

func TestHandleInvokeReturns422ForUnknownTool(t *testing.T) {
	s := newTestServer(t, "")
	body := `{"tool_name":"nonexistent","domain":"test","action":"run","risk_level":"low"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/invoke", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleAddIntentRequiresDescriptionAndKind(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/v1/intents", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAddIntentCreatesIntent(t *testing.T) {
	s := newTestServer(t, "")
	body := `{"description":"do something","kind":"SERVE","priority":0.5,"source":"operator"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/intents", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, s.intents.Len())
}

func TestHandleEconomyResetRequiresAuth(t *testing.T) {
	s := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodPost, "/v1/economy/reset", bytes.NewBufferString(`{"budget":0,"reserve":100}`))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleEconomyResetAppliesNewBudgetWithValidAuth(t *testing.T) {
	s := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodPost, "/v1/economy/reset", bytes.NewBufferString(`{"budget":50,"reserve":500}`))
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", "operator"))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var snap economy.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 50.0, snap.Budget)
}

func TestHandleVitalsReturnsHeartbeatMindAndSovereignty(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/vitals", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var v vitals
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, 100.0, v.Heartbeat.Budget)
	assert.Equal(t, "surviving", v.Heartbeat.Status)
	assert.Equal(t, 0, v.Mind.StackDepth)
	assert.Equal(t, "idle", v.Mind.Focus)
	assert.Nil(t, v.Sovereignty.LastRefusal)
}

func TestHandleEPEReportReturnsPolicyReport(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/epe/report", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleWhyRoutesThroughMemoryTool(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/why/nonexistent-outcome", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var result envelope.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success, "memory tool is not registered on this test server, so the lookup fails cleanly")
}
