package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/diag-router/internal/backends"
	"github.com/tributary-ai/diag-router/internal/consensus"
	"github.com/tributary-ai/diag-router/internal/quality"
	"github.com/tributary-ai/diag-router/internal/routing"
	"github.com/tributary-ai/diag-router/internal/types"
)

// Orchestrator is the caller-facing surface of the routing layer: it owns
// the single-backend path (route then execute with fallback), the
// multi-backend consensus path, and post-hoc answer assessment. It holds
// no per-request state; everything it hands back is request-scoped.
type Orchestrator struct {
	registry   *backends.Registry
	policy     *routing.Policy
	executor   *routing.Executor
	aggregator *consensus.Aggregator
	validator  *quality.Validator
	scorer     *quality.Scorer
	checklists map[types.Category]quality.Checklist

	// Panel queried when the caller omits a backend set
	defaultPanel []string

	logger *logrus.Logger
}

// Config wires an orchestrator together
type Config struct {
	Registry     *backends.Registry
	Policy       *routing.Policy
	Executor     *routing.Executor
	Aggregator   *consensus.Aggregator
	Validator    *quality.Validator
	Scorer       *quality.Scorer
	Checklists   map[types.Category]quality.Checklist
	DefaultPanel []string
}

// New creates an orchestrator from its assembled components
func New(cfg Config, logger *logrus.Logger) (*Orchestrator, error) {
	if cfg.Registry == nil || cfg.Policy == nil || cfg.Executor == nil {
		return nil, fmt.Errorf("orchestrator requires registry, policy, and executor")
	}
	if cfg.Checklists == nil {
		cfg.Checklists = quality.DefaultChecklists()
	}
	for _, id := range cfg.DefaultPanel {
		if !cfg.Registry.Has(id) {
			return nil, fmt.Errorf("default consensus panel references unknown backend %s", id)
		}
	}

	return &Orchestrator{
		registry:     cfg.Registry,
		policy:       cfg.Policy,
		executor:     cfg.Executor,
		aggregator:   cfg.Aggregator,
		validator:    cfg.Validator,
		scorer:       cfg.Scorer,
		checklists:   cfg.Checklists,
		defaultPanel: cfg.DefaultPanel,
		logger:       logger,
	}, nil
}

// RouteAndInvoke is the single-backend path: decide, then execute with
// fallback. The returned result is failed (never silently empty) when the
// whole chain is exhausted.
func (o *Orchestrator) RouteAndInvoke(ctx context.Context, req *types.ConsultRequest, override *routing.Override) (*types.InvocationResult, *routing.Decision, error) {
	ensureRequestID(req)

	decision, err := o.policy.Decide(req.Text, override)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	result, err := o.executor.Execute(ctx, decision, req)
	if err != nil {
		return nil, decision, err
	}

	o.logger.WithFields(logrus.Fields{
		"request_id":  req.ID,
		"backend":     result.BackendID,
		"method":      decision.Method,
		"succeeded":   result.Succeeded,
		"attempts":    len(result.Attempts),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Consult request handled")

	return result, decision, nil
}

// RouteAndConsensus is the multi-backend path. backendSet defaults to the
// configured standard panel when omitted.
func (o *Orchestrator) RouteAndConsensus(ctx context.Context, req *types.ConsultRequest, backendSet []string) (*types.ConsensusResult, error) {
	ensureRequestID(req)

	if len(backendSet) == 0 {
		backendSet = o.defaultPanel
	}
	if len(backendSet) == 0 {
		return nil, fmt.Errorf("no consensus panel configured")
	}

	return o.aggregator.Aggregate(ctx, req, backendSet)
}

// ValidateAndScore runs the structural validator and the quality scorer
// over one raw answer, independent of which path produced it. Required
// sections come from the category's checklist.
func (o *Orchestrator) ValidateAndScore(rawText string, category types.Category) (*types.ValidationResult, *types.Scorecard) {
	checklist := quality.ChecklistFor(o.checklists, category)
	validation := o.validator.Validate(rawText, checklist.Required)
	scorecard := o.scorer.Score(rawText, category)
	return validation, scorecard
}

// Registry exposes the backend catalogue for read-only introspection
func (o *Orchestrator) Registry() *backends.Registry {
	return o.registry
}

// Decide exposes the routing decision without executing it (dry run)
func (o *Orchestrator) Decide(requestText string, override *routing.Override) (*routing.Decision, error) {
	return o.policy.Decide(requestText, override)
}

func ensureRequestID(req *types.ConsultRequest) {
	if req.ID == "" {
		req.ID = "consult-" + uuid.NewString()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}
}
