package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/diag-router/internal/backends"
	"github.com/tributary-ai/diag-router/internal/types"
)

// Error taxonomy for the executor. Transport and soft errors are
// recovered locally by chain advancement; only chain exhaustion reaches
// the caller, and it does so as a failed InvocationResult rather than a
// hard error.
var (
	ErrUnknownBackend = errors.New("unknown backend")
	ErrChainExhausted = errors.New("fallback chain exhausted")
)

// Executor runs a routing decision against its backend, advancing through
// the backend's fallback chain when calls fail. Chain walks are strictly
// sequential: candidates are billed per call, so there is no speculative
// racing, and a failed backend is never retried in place.
type Executor struct {
	registry    *backends.Registry
	rules       *FailureRules
	callTimeout time.Duration
	logger      *logrus.Logger
}

// NewExecutor creates a fallback executor. callTimeout bounds each
// individual attempt; responses can be large, so it is typically tens of
// seconds to a few minutes.
func NewExecutor(registry *backends.Registry, rules *FailureRules, callTimeout time.Duration, logger *logrus.Logger) *Executor {
	if rules == nil {
		rules = DefaultFailureRules()
	}
	return &Executor{
		registry:    registry,
		rules:       rules,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// Execute attempts the decision's backend first, then each fallback chain
// candidate in declared order, reusing the same invocation parameters.
// The returned result is never nil on a nil error: when the whole chain
// fails it carries Succeeded=false and the last observed error, and the
// caller decides whether that is fatal. A non-nil error means the
// decision referenced a backend the registry does not know, which is a
// configuration bug rather than a runtime failure.
func (e *Executor) Execute(ctx context.Context, decision *Decision, req *types.ConsultRequest) (*types.InvocationResult, error) {
	primary, ok := e.registry.Descriptor(decision.BackendID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, decision.BackendID)
	}

	inv := &backends.Invocation{
		Prompt:         req.Text,
		Attachment:     req.Attachment,
		AttachmentMIME: req.AttachmentMIME,
		Params:         decision.Params,
	}

	candidates := append([]string{primary.ID}, primary.FallbackChain...)

	result := &types.InvocationResult{BackendID: primary.ID}
	for i, id := range candidates {
		if i > 0 {
			fallbackAdvanceTotal.Inc()
		}

		attempt, resp := e.attempt(ctx, id, inv)
		result.Attempts = append(result.Attempts, attempt)

		e.logger.WithFields(logrus.Fields{
			"backend":     id,
			"request_id":  req.ID,
			"attempt":     i + 1,
			"succeeded":   attempt.Succeeded,
			"duration_ms": attempt.Latency.Milliseconds(),
		}).Info("Backend attempt finished")

		if attempt.Succeeded {
			result.BackendID = id
			result.Succeeded = true
			result.RawText = resp.Body
			result.StatusCode = attempt.StatusCode
			result.Latency = attempt.Latency
			result.TokensUsed = resp.TokensUsed
			result.Error = ""
			return result, nil
		}

		result.BackendID = id
		result.Error = attempt.Error
		result.StatusCode = attempt.StatusCode
		result.Latency = attempt.Latency

		if ctx.Err() != nil {
			// The request's own deadline is gone; walking further down
			// the chain cannot help.
			break
		}
	}

	chainExhaustedTotal.Inc()
	e.logger.WithFields(logrus.Fields{
		"backend":    primary.ID,
		"request_id": req.ID,
		"attempts":   len(result.Attempts),
		"last_error": result.Error,
	}).Warn("Fallback chain exhausted")

	result.Succeeded = false
	return result, nil
}

// attempt performs one timed call against a single backend and judges the
// outcome: transport error, non-success status, or error-shaped body all
// count as failure.
func (e *Executor) attempt(ctx context.Context, id string, inv *backends.Invocation) (types.InvocationAttempt, *backends.Response) {
	attempt := types.InvocationAttempt{BackendID: id}

	invoker, ok := e.registry.Invoker(id)
	if !ok {
		attempt.Error = fmt.Sprintf("backend %s has no bound invoker", id)
		attemptTotal.WithLabelValues(id, "transport_error").Inc()
		return attempt, nil
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if e.callTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := invoker.Invoke(callCtx, inv)
	attempt.Latency = time.Since(start)
	attemptLatency.WithLabelValues(id).Observe(attempt.Latency.Seconds())

	switch {
	case err != nil:
		attempt.Error = err.Error()
		attemptTotal.WithLabelValues(id, "transport_error").Inc()

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		attempt.StatusCode = resp.StatusCode
		attempt.Error = fmt.Sprintf("backend returned status %d: %s", resp.StatusCode, truncate(resp.Body, 200))
		attemptTotal.WithLabelValues(id, "bad_status").Inc()

	default:
		if rule, bad := e.rules.Match(resp.Body); bad {
			attempt.StatusCode = resp.StatusCode
			attempt.Error = fmt.Sprintf("error-shaped response (%s): %s", rule, truncate(resp.Body, 200))
			attemptTotal.WithLabelValues(id, "soft_failure").Inc()
			break
		}
		attempt.StatusCode = resp.StatusCode
		attempt.Succeeded = true
		attemptTotal.WithLabelValues(id, "success").Inc()
	}

	return attempt, resp
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
