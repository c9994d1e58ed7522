package routing

import (
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/diag-router/internal/backends"
	"github.com/tributary-ai/diag-router/internal/types"
)

// Method records how a routing decision was reached
type Method string

const (
	// Backend pinned by a tag embedded in the request text
	MethodExplicitTag Method = "explicit_tag"
	// Backend pinned by a structured request parameter
	MethodExplicitParameter Method = "explicit_parameter"
	// Backend chosen by the complexity classifier
	MethodAutomatic Method = "automatic"
)

// Decision is the immutable outcome of routing one request: which backend
// to try first and with what invocation parameters. The fallback executor
// consumes it as-is.
type Decision struct {
	BackendID  string            `json:"backend_id"`
	Params     map[string]string `json:"params"`
	Method     Method            `json:"method"`
	Rationale  string            `json:"rationale"`
	Category   types.Category    `json:"category,omitempty"`
	Complexity ComplexityLevel   `json:"complexity,omitempty"`
}

// Override pins a specific backend and/or invocation parameters from a
// structured caller argument. Overrides always win over inference so an
// operator can redirect traffic without code changes.
type Override struct {
	BackendID string            `json:"backend_id,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

// backendTag matches an operator directive embedded in request text,
// e.g. "@backend=claude-high".
var backendTag = regexp.MustCompile(`@backend=([A-Za-z0-9][A-Za-z0-9._-]*)`)

// Policy decides which backend and invocation parameters serve a request.
// It consults explicit caller overrides first, then the complexity
// classifier, then the tier defaults. Decide is a pure function of its
// inputs and the static keyword tables.
type Policy struct {
	registry   *backends.Registry
	classifier *Classifier
	logger     *logrus.Logger
}

// NewPolicy creates a routing policy over the given registry and classifier
func NewPolicy(registry *backends.Registry, classifier *Classifier, logger *logrus.Logger) *Policy {
	return &Policy{
		registry:   registry,
		classifier: classifier,
		logger:     logger,
	}
}

// Decide returns the routing decision for a request. If override names a
// known backend, or the text embeds a backend tag, the classifier is not
// consulted at all.
func (p *Policy) Decide(requestText string, override *Override) (*Decision, error) {
	if override != nil && override.BackendID != "" {
		if !p.registry.Has(override.BackendID) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, override.BackendID)
		}
		return &Decision{
			BackendID: override.BackendID,
			Params:    mergeParams(nil, override.Params),
			Method:    MethodExplicitParameter,
			Rationale: fmt.Sprintf("caller pinned backend %s", override.BackendID),
		}, nil
	}

	if m := backendTag.FindStringSubmatch(requestText); m != nil {
		id := m[1]
		if !p.registry.Has(id) {
			return nil, fmt.Errorf("%w: %s (embedded tag)", ErrUnknownBackend, id)
		}
		var extra map[string]string
		if override != nil {
			extra = override.Params
		}
		return &Decision{
			BackendID: id,
			Params:    mergeParams(nil, extra),
			Method:    MethodExplicitTag,
			Rationale: fmt.Sprintf("request text pinned backend %s", id),
		}, nil
	}

	category, complexity := p.classifier.Classify(requestText)
	tier := p.tierFor(category, complexity)

	backendID, ok := p.registry.ByTier(tier)
	if !ok {
		// A sparse registry may not populate every tier; fall back to
		// whatever is declared first.
		backendID = p.registry.IDs()[0]
		tier = ""
	}

	params := paramsFor(complexity)
	if override != nil {
		params = mergeParams(params, override.Params)
	}

	decision := &Decision{
		BackendID:  backendID,
		Params:     params,
		Method:     MethodAutomatic,
		Rationale:  fmt.Sprintf("classified as %s/%s, tier %s", category, complexity, tier),
		Category:   category,
		Complexity: complexity,
	}

	p.logger.WithFields(logrus.Fields{
		"backend":    backendID,
		"category":   category,
		"complexity": complexity,
		"method":     decision.Method,
	}).Debug("Routing decision made")

	return decision, nil
}

// tierFor applies the fixed (category, complexity) precedence table
func (p *Policy) tierFor(category types.Category, complexity ComplexityLevel) types.Tier {
	switch complexity {
	case ComplexityCritical:
		return types.TierHighCapability
	case ComplexityComplex:
		if p.classifier.IsExtraction(category) {
			// Structured-document pulls do better on the fast
			// specialised tier than on a slow generalist.
			return types.TierFast
		}
		return types.TierHighCapability
	case ComplexitySimple:
		return types.TierFast
	default:
		return types.TierBalanced
	}
}

// paramsFor derives the invocation parameter profile from complexity.
// The values are opaque to this layer; each invoker maps them onto its
// own SDK.
func paramsFor(complexity ComplexityLevel) map[string]string {
	switch complexity {
	case ComplexityCritical, ComplexityComplex:
		return map[string]string{backends.ParamReasoningEffort: "high"}
	case ComplexitySimple:
		return map[string]string{
			backends.ParamReasoningEffort: "low",
			backends.ParamLatencyProfile:  "realtime",
		}
	default:
		return map[string]string{backends.ParamReasoningEffort: "medium"}
	}
}

func mergeParams(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
