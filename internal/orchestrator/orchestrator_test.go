package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-ai/diag-router/internal/backends"
	"github.com/tributary-ai/diag-router/internal/consensus"
	"github.com/tributary-ai/diag-router/internal/quality"
	"github.com/tributary-ai/diag-router/internal/routing"
	"github.com/tributary-ai/diag-router/internal/types"
)

type scriptedInvoker struct {
	id   string
	body string
}

func (s *scriptedInvoker) ID() string { return s.id }

func (s *scriptedInvoker) Invoke(ctx context.Context, inv *backends.Invocation) (*backends.Response, error) {
	return &backends.Response{StatusCode: 200, Body: s.body, TokensUsed: 7}, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	descriptors := []types.BackendDescriptor{
		{ID: "fast-1", Provider: "openai", Model: "m", Tier: types.TierFast, FallbackChain: []string{"balanced-1"}},
		{ID: "balanced-1", Provider: "openai", Model: "m", Tier: types.TierBalanced},
		{ID: "high-1", Provider: "anthropic", Model: "m", Tier: types.TierHighCapability},
	}
	registry, err := backends.NewRegistry(descriptors, quietLogger())
	require.NoError(t, err)

	require.NoError(t, registry.Bind(&scriptedInvoker{id: "fast-1", body: "Diagnosis: fine\nRecommendations: none"}))
	require.NoError(t, registry.Bind(&scriptedInvoker{id: "balanced-1", body: "Diagnosis: fine\nRecommendations: none"}))
	require.NoError(t, registry.Bind(&scriptedInvoker{id: "high-1", body: "Diagnosis: fine\nRecommendations: none"}))

	classifier := routing.NewClassifier(routing.DefaultVocabulary(), routing.DefaultCategories())
	executor := routing.NewExecutor(registry, nil, time.Second, quietLogger())

	orch, err := New(Config{
		Registry:     registry,
		Policy:       routing.NewPolicy(registry, classifier, quietLogger()),
		Executor:     executor,
		Aggregator:   consensus.NewAggregator(registry, executor, time.Second, quietLogger()),
		Validator:    quality.NewValidator(quietLogger()),
		Scorer:       quality.NewScorer(nil),
		DefaultPanel: []string{"balanced-1", "high-1"},
	}, quietLogger())
	require.NoError(t, err)
	return orch
}

func TestNewRejectsUnknownPanelMember(t *testing.T) {
	descriptors := []types.BackendDescriptor{
		{ID: "only", Provider: "openai", Model: "m", Tier: types.TierBalanced},
	}
	registry, err := backends.NewRegistry(descriptors, quietLogger())
	require.NoError(t, err)

	classifier := routing.NewClassifier(routing.DefaultVocabulary(), routing.DefaultCategories())
	executor := routing.NewExecutor(registry, nil, time.Second, quietLogger())

	_, err = New(Config{
		Registry:     registry,
		Policy:       routing.NewPolicy(registry, classifier, quietLogger()),
		Executor:     executor,
		DefaultPanel: []string{"ghost"},
	}, quietLogger())
	assert.Error(t, err)
}

func TestRouteAndInvokeOverride(t *testing.T) {
	orch := newTestOrchestrator(t)

	req := &types.ConsultRequest{Text: "please review this report"}
	result, decision, err := orch.RouteAndInvoke(context.Background(), req, &routing.Override{BackendID: "high-1"})
	require.NoError(t, err)

	assert.Equal(t, "high-1", decision.BackendID)
	assert.Equal(t, routing.MethodExplicitParameter, decision.Method)
	assert.True(t, result.Succeeded)
	assert.Equal(t, "high-1", result.BackendID)
}

func TestRouteAndInvokeAssignsRequestID(t *testing.T) {
	orch := newTestOrchestrator(t)

	req := &types.ConsultRequest{Text: "please review this report"}
	_, _, err := orch.RouteAndInvoke(context.Background(), req, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, req.ID)
	assert.False(t, req.Timestamp.IsZero())
}

func TestRouteAndInvokeAutomatic(t *testing.T) {
	orch := newTestOrchestrator(t)

	req := &types.ConsultRequest{Text: "simple screening check"}
	result, decision, err := orch.RouteAndInvoke(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Equal(t, routing.MethodAutomatic, decision.Method)
	assert.Equal(t, "fast-1", decision.BackendID)
	assert.True(t, result.Succeeded)
}

func TestRouteAndConsensusDefaultPanel(t *testing.T) {
	orch := newTestOrchestrator(t)

	req := &types.ConsultRequest{Text: "second opinion on this film"}
	result, err := orch.RouteAndConsensus(context.Background(), req, nil)
	require.NoError(t, err)

	assert.True(t, result.Available)
	assert.Len(t, result.Opinions, 2)
}

func TestRouteAndConsensusExplicitPanel(t *testing.T) {
	orch := newTestOrchestrator(t)

	req := &types.ConsultRequest{Text: "second opinion on this film"}
	result, err := orch.RouteAndConsensus(context.Background(), req, []string{"fast-1", "balanced-1", "high-1"})
	require.NoError(t, err)

	assert.Len(t, result.Opinions, 3)
}

func TestValidateAndScore(t *testing.T) {
	orch := newTestOrchestrator(t)

	text := "Diagnosis: nothing acute. Recommendations: routine follow-up."
	validation, scorecard := orch.ValidateAndScore(text, types.CategoryGeneral)

	require.NotNil(t, validation)
	require.NotNil(t, scorecard)
	assert.True(t, validation.IsValid)
	assert.Equal(t, 1.0, validation.CompletenessScore)
	assert.Equal(t, 1.0, scorecard.Completeness)
}

func TestDecideDryRun(t *testing.T) {
	orch := newTestOrchestrator(t)

	decision, err := orch.Decide("patient in cardiac arrest", nil)
	require.NoError(t, err)
	assert.Equal(t, "high-1", decision.BackendID)
}
