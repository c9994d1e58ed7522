package backends

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/diag-router/internal/types"
)

// Registry is the static catalogue of completion backends. It is built
// once at process start and shared read-only by all requests: routing
// never mutates registry state, so no locking is needed.
type Registry struct {
	descriptors map[string]*types.BackendDescriptor

	// Declared order; doubles as tier priority
	order []string

	// Backend IDs per tier, in declared order
	tierIndex map[types.Tier][]string

	invokers map[string]Invoker
	logger   *logrus.Logger
}

// NewRegistry builds a registry from the configured descriptor table.
// Fallback chains must reference known backend IDs and must not include
// the backend itself.
func NewRegistry(descriptors []types.BackendDescriptor, logger *logrus.Logger) (*Registry, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("registry requires at least one backend descriptor")
	}

	r := &Registry{
		descriptors: make(map[string]*types.BackendDescriptor, len(descriptors)),
		tierIndex:   make(map[types.Tier][]string),
		invokers:    make(map[string]Invoker),
		logger:      logger,
	}

	for i := range descriptors {
		d := descriptors[i]
		if d.ID == "" {
			return nil, fmt.Errorf("backend descriptor %d has no id", i)
		}
		if !types.ValidTier(d.Tier) {
			return nil, fmt.Errorf("backend %s has invalid tier %q", d.ID, d.Tier)
		}
		if _, dup := r.descriptors[d.ID]; dup {
			return nil, fmt.Errorf("duplicate backend id %s", d.ID)
		}
		r.descriptors[d.ID] = &d
		r.order = append(r.order, d.ID)
		r.tierIndex[d.Tier] = append(r.tierIndex[d.Tier], d.ID)
	}

	// Chains can only be checked once all IDs are known
	for _, id := range r.order {
		for _, fb := range r.descriptors[id].FallbackChain {
			if fb == id {
				return nil, fmt.Errorf("backend %s lists itself in its fallback chain", id)
			}
			if _, ok := r.descriptors[fb]; !ok {
				return nil, fmt.Errorf("backend %s fallback chain references unknown backend %s", id, fb)
			}
		}
	}

	return r, nil
}

// Bind attaches the invoker that drives a configured backend. Bind is
// part of startup wiring and must not be called once requests are being
// served.
func (r *Registry) Bind(invoker Invoker) error {
	id := invoker.ID()
	if _, ok := r.descriptors[id]; !ok {
		return fmt.Errorf("no descriptor for backend %s", id)
	}
	if _, dup := r.invokers[id]; dup {
		return fmt.Errorf("backend %s already bound", id)
	}
	r.invokers[id] = invoker

	r.logger.WithFields(logrus.Fields{
		"backend": id,
		"tier":    r.descriptors[id].Tier,
	}).Info("Backend bound")
	return nil
}

// Descriptor returns the descriptor for a backend ID
func (r *Registry) Descriptor(id string) (*types.BackendDescriptor, bool) {
	d, ok := r.descriptors[id]
	return d, ok
}

// Invoker returns the invoker bound to a backend ID
func (r *Registry) Invoker(id string) (Invoker, bool) {
	inv, ok := r.invokers[id]
	return inv, ok
}

// Has reports whether a backend ID is configured
func (r *Registry) Has(id string) bool {
	_, ok := r.descriptors[id]
	return ok
}

// ByTier returns the preferred backend for a tier: the first one declared
// with that tier in the configuration. Declared order is the priority
// order, fixed at startup.
func (r *Registry) ByTier(tier types.Tier) (string, bool) {
	ids := r.tierIndex[tier]
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// IDs returns all configured backend IDs in declared order
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Descriptors returns all descriptors in declared order
func (r *Registry) Descriptors() []types.BackendDescriptor {
	out := make([]types.BackendDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.descriptors[id])
	}
	return out
}
