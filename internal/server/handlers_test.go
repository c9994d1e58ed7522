package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-ai/diag-router/internal/backends"
	"github.com/tributary-ai/diag-router/internal/consensus"
	"github.com/tributary-ai/diag-router/internal/orchestrator"
	"github.com/tributary-ai/diag-router/internal/quality"
	"github.com/tributary-ai/diag-router/internal/routing"
	"github.com/tributary-ai/diag-router/internal/types"
)

type cannedInvoker struct {
	id   string
	body string
}

func (c *cannedInvoker) ID() string { return c.id }

func (c *cannedInvoker) Invoke(ctx context.Context, inv *backends.Invocation) (*backends.Response, error) {
	return &backends.Response{StatusCode: 200, Body: c.body, TokensUsed: 3}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	descriptors := []types.BackendDescriptor{
		{ID: "fast-1", Provider: "openai", Model: "m", Tier: types.TierFast, FallbackChain: []string{"balanced-1"}},
		{ID: "balanced-1", Provider: "openai", Model: "m", Tier: types.TierBalanced},
		{ID: "high-1", Provider: "anthropic", Model: "m", Tier: types.TierHighCapability},
	}
	registry, err := backends.NewRegistry(descriptors, logger)
	require.NoError(t, err)

	answer := "Diagnosis: nothing acute\nRecommendations: routine follow-up"
	for _, id := range []string{"fast-1", "balanced-1", "high-1"} {
		require.NoError(t, registry.Bind(&cannedInvoker{id: id, body: answer}))
	}

	classifier := routing.NewClassifier(routing.DefaultVocabulary(), routing.DefaultCategories())
	executor := routing.NewExecutor(registry, nil, time.Second, logger)

	orch, err := orchestrator.New(orchestrator.Config{
		Registry:     registry,
		Policy:       routing.NewPolicy(registry, classifier, logger),
		Executor:     executor,
		Aggregator:   consensus.NewAggregator(registry, executor, time.Second, logger),
		Validator:    quality.NewValidator(logger),
		Scorer:       quality.NewScorer(nil),
		DefaultPanel: []string{"balanced-1", "high-1"},
	}, logger)
	require.NoError(t, err)

	srv, err := NewServer(orch, &Config{Port: "0"}, logger)
	require.NoError(t, err)
	return srv
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleConsult(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupRoutes()

	rec := postJSON(t, handler, "/v1/consult", map[string]interface{}{
		"text": "please review this report",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		RequestID string                  `json:"request_id"`
		Decision  *routing.Decision       `json:"decision"`
		Result    *types.InvocationResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.NotEmpty(t, body.RequestID)
	assert.Equal(t, routing.MethodAutomatic, body.Decision.Method)
	assert.True(t, body.Result.Succeeded)
	assert.Contains(t, body.Result.RawText, "Diagnosis")
}

func TestHandleConsultWithAssessment(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupRoutes()

	rec := postJSON(t, handler, "/v1/consult", map[string]interface{}{
		"text":   "please review this report",
		"assess": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "validation")
	assert.Contains(t, body, "scorecard")
}

func TestHandleConsultMissingText(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupRoutes()

	rec := postJSON(t, handler, "/v1/consult", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleConsultUnknownOverride(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupRoutes()

	rec := postJSON(t, handler, "/v1/consult", map[string]interface{}{
		"text":    "please review",
		"backend": "ghost",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleConsultBadAttachment(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupRoutes()

	rec := postJSON(t, handler, "/v1/consult", map[string]interface{}{
		"text":       "please review",
		"attachment": "not!!valid!!base64",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleConsensus(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupRoutes()

	rec := postJSON(t, handler, "/v1/consensus", map[string]interface{}{
		"text": "second opinion on this film",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Consensus *types.ConsensusResult `json:"consensus"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Consensus.Available)
	assert.Len(t, body.Consensus.Opinions, 2)
}

func TestHandleAssess(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupRoutes()

	rec := postJSON(t, handler, "/v1/assess", map[string]interface{}{
		"text": "Diagnosis: fine. Recommendations: none.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Validation *types.ValidationResult `json:"validation"`
		Scorecard  *types.Scorecard        `json:"scorecard"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Validation.IsValid)
	assert.Equal(t, 1.0, body.Scorecard.Completeness)
}

func TestHandleRoutingDecision(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupRoutes()

	rec := postJSON(t, handler, "/v1/routing/decision", map[string]interface{}{
		"text": "patient in cardiac arrest",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var decision routing.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.Equal(t, "high-1", decision.BackendID)
}

func TestHandleListBackends(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupRoutes()

	req := httptest.NewRequest("GET", "/v1/backends", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Backends []types.BackendDescriptor `json:"backends"`
		Count    int                       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)
	assert.Equal(t, "fast-1", body.Backends[0].ID)
}

func TestHandleGetBackend(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupRoutes()

	req := httptest.NewRequest("GET", "/v1/backends/high-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest("GET", "/v1/backends/ghost", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealthCheck(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupRoutes()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleOpenAPISpecServed(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupRoutes()

	req := httptest.NewRequest("GET", "/docs/openapi.yaml", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi:")

	req = httptest.NewRequest("GET", "/docs/openapi.json", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var spec map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spec))
	assert.Contains(t, spec, "paths")
}

func TestContentTypeRejected(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupRoutes()

	req := httptest.NewRequest("POST", "/v1/consult", bytes.NewReader([]byte("text=hi")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}
