package consensus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tributary-ai/diag-router/internal/backends"
	"github.com/tributary-ai/diag-router/internal/routing"
	"github.com/tributary-ai/diag-router/internal/types"
)

var consensusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "diag_router",
	Subsystem: "consensus",
	Name:      "requests_total",
	Help:      "Consensus requests by outcome: full, degraded, failed",
}, []string{"outcome"})

// Aggregator queries several backends independently for the same request
// and reconciles their answers into one report that quantifies agreement
// and surfaces disagreement.
type Aggregator struct {
	registry    *backends.Registry
	executor    *routing.Executor
	callTimeout time.Duration
	logger      *logrus.Logger
}

// NewAggregator creates a consensus aggregator. callTimeout guards each
// independent panel call; a backend that misses its deadline simply
// contributes nothing.
func NewAggregator(registry *backends.Registry, executor *routing.Executor, callTimeout time.Duration, logger *logrus.Logger) *Aggregator {
	return &Aggregator{
		registry:    registry,
		executor:    executor,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// Aggregate fans the request out to every backend in backendSet, one
// goroutine per backend with its own timeout, then joins whatever
// finished in time into the opinion set. Panel calls are independent:
// there is no cancellation propagation between them, and each goes
// through the fallback executor so a degraded backend can still
// contribute via its chain.
//
// Fewer than two successful opinions degrade the result (Available=false)
// rather than failing the request; a single opinion is exposed as-is.
func (a *Aggregator) Aggregate(ctx context.Context, req *types.ConsultRequest, backendSet []string) (*types.ConsensusResult, error) {
	for _, id := range backendSet {
		if !a.registry.Has(id) {
			return nil, fmt.Errorf("%w: %s", routing.ErrUnknownBackend, id)
		}
	}

	results := make([]*types.InvocationResult, len(backendSet))

	var g errgroup.Group
	for i, id := range backendSet {
		i, id := i, id
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
			defer cancel()

			decision := &routing.Decision{
				BackendID: id,
				Params:    map[string]string{backends.ParamReasoningEffort: "high"},
				Method:    routing.MethodAutomatic,
				Rationale: "consensus panel member",
			}

			res, err := a.executor.Execute(callCtx, decision, req)
			if err != nil {
				res = &types.InvocationResult{BackendID: id, Error: err.Error()}
			}
			results[i] = res
			return nil
		})
	}
	// Workers never return errors; Wait is just the join point.
	_ = g.Wait()

	result := a.reconcile(ctx, req, results)

	a.logger.WithFields(logrus.Fields{
		"request_id": req.ID,
		"panel_size": len(backendSet),
		"opinions":   len(result.Opinions),
		"available":  result.Available,
		"agreement":  result.AgreementRatio,
	}).Info("Consensus aggregation finished")

	return result, nil
}

// reconcile builds the ConsensusResult from whatever panel calls succeeded
func (a *Aggregator) reconcile(ctx context.Context, req *types.ConsultRequest, results []*types.InvocationResult) *types.ConsensusResult {
	out := &types.ConsensusResult{
		CommonDiagnoses: []string{},
		Discrepancies:   []string{},
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		if !res.Succeeded {
			out.Failures = append(out.Failures, *res)
			continue
		}
		out.Opinions = append(out.Opinions, types.Opinion{
			BackendID: res.BackendID,
			Finding:   ExtractFinding(res.RawText),
			RawText:   res.RawText,
		})
	}

	switch len(out.Opinions) {
	case 0:
		consensusTotal.WithLabelValues("failed").Inc()
		return out
	case 1:
		// Degraded single-opinion result: better than failing the
		// whole request, but not a consensus.
		out.MergedText = out.Opinions[0].RawText
		out.Urgency = out.Opinions[0].Finding.Urgency
		consensusTotal.WithLabelValues("degraded").Inc()
		return out
	}

	out.Available = true
	consensusTotal.WithLabelValues("full").Inc()

	// A diagnosis is common when at least two distinct opinions list it.
	// Comparison is by exact string: backends naming the same condition
	// differently count as disagreement.
	occurrence := make(map[string]int)
	order := []string{}
	for _, op := range out.Opinions {
		for _, d := range dedupe(op.Finding.Diagnoses) {
			if occurrence[d] == 0 {
				order = append(order, d)
			}
			occurrence[d]++
		}
	}

	for _, d := range order {
		if occurrence[d] >= 2 {
			out.CommonDiagnoses = append(out.CommonDiagnoses, d)
		} else {
			holders := opinionsReporting(out.Opinions, d)
			out.Discrepancies = append(out.Discrepancies,
				fmt.Sprintf("only %s reported: %s", strings.Join(holders, ", "), d))
		}
	}

	if len(order) > 0 {
		out.AgreementRatio = float64(len(out.CommonDiagnoses)) / float64(len(order))
	}

	out.Urgency = consensusUrgency(out.Opinions)
	if disagree := urgencyDisagreement(out.Opinions); disagree != "" {
		out.Discrepancies = append(out.Discrepancies, disagree)
	}

	out.MergedText = a.mergeOpinions(ctx, req, out)
	return out
}

// mergeOpinions produces the synthesized answer via one more backend call
// on the high-capability tier, subject to the same fallback handling as
// any other invocation. If even that chain fails, the first opinion's raw
// text stands in so the caller is never handed an empty merged report.
func (a *Aggregator) mergeOpinions(ctx context.Context, req *types.ConsultRequest, cr *types.ConsensusResult) string {
	reconcilerID, ok := a.registry.ByTier(types.TierHighCapability)
	if !ok {
		reconcilerID = a.registry.IDs()[0]
	}

	decision := &routing.Decision{
		BackendID: reconcilerID,
		Params:    map[string]string{backends.ParamReasoningEffort: "high"},
		Method:    routing.MethodAutomatic,
		Rationale: "consensus reconciliation",
	}

	mergeReq := &types.ConsultRequest{
		ID:        req.ID + "-merge",
		Text:      buildReconciliationPrompt(req.Text, cr),
		Timestamp: time.Now(),
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	res, err := a.executor.Execute(callCtx, decision, mergeReq)
	if err != nil || !res.Succeeded {
		a.logger.WithFields(logrus.Fields{
			"request_id": req.ID,
			"backend":    reconcilerID,
		}).Warn("Reconciliation call failed, falling back to first opinion")
		return cr.Opinions[0].RawText
	}
	return res.RawText
}

// buildReconciliationPrompt hands the reconciling backend every opinion's
// structured finding plus the computed agreement so it can synthesize one
// coherent answer instead of concatenating texts.
func buildReconciliationPrompt(requestText string, cr *types.ConsensusResult) string {
	var b strings.Builder
	b.WriteString("Several independent reviewers answered the same request. ")
	b.WriteString("Synthesize their findings into one coherent report, noting disagreements explicitly.\n\n")
	fmt.Fprintf(&b, "Original request: %s\n\n", requestText)

	for _, op := range cr.Opinions {
		fmt.Fprintf(&b, "Reviewer %s:\n", op.BackendID)
		if len(op.Finding.Diagnoses) > 0 {
			fmt.Fprintf(&b, "  Diagnoses: %s\n", strings.Join(op.Finding.Diagnoses, "; "))
		}
		if op.Finding.Urgency != "" {
			fmt.Fprintf(&b, "  Urgency: %s\n", op.Finding.Urgency)
		}
		if len(op.Finding.Codes) > 0 {
			fmt.Fprintf(&b, "  Codes: %s\n", strings.Join(op.Finding.Codes, ", "))
		}
	}

	if len(cr.CommonDiagnoses) > 0 {
		fmt.Fprintf(&b, "\nAgreed diagnoses: %s\n", strings.Join(cr.CommonDiagnoses, "; "))
	}
	if cr.Urgency != "" {
		fmt.Fprintf(&b, "Consensus urgency: %s\n", cr.Urgency)
	}
	for _, d := range cr.Discrepancies {
		fmt.Fprintf(&b, "Disagreement: %s\n", d)
	}
	return b.String()
}

// consensusUrgency picks the most frequent non-empty urgency, breaking
// ties toward the higher severity.
func consensusUrgency(opinions []types.Opinion) types.Urgency {
	counts := make(map[types.Urgency]int)
	for _, op := range opinions {
		if op.Finding.Urgency != "" {
			counts[op.Finding.Urgency]++
		}
	}
	if len(counts) == 0 {
		return ""
	}

	levels := make([]types.Urgency, 0, len(counts))
	for u := range counts {
		levels = append(levels, u)
	}
	sort.Slice(levels, func(i, j int) bool {
		if counts[levels[i]] != counts[levels[j]] {
			return counts[levels[i]] > counts[levels[j]]
		}
		return levels[i].SeverityRank() > levels[j].SeverityRank()
	})
	return levels[0]
}

func urgencyDisagreement(opinions []types.Opinion) string {
	seen := make(map[types.Urgency][]string)
	for _, op := range opinions {
		if op.Finding.Urgency != "" {
			seen[op.Finding.Urgency] = append(seen[op.Finding.Urgency], op.BackendID)
		}
	}
	if len(seen) < 2 {
		return ""
	}

	parts := make([]string, 0, len(seen))
	for u, ids := range seen {
		parts = append(parts, fmt.Sprintf("%s (%s)", u, strings.Join(ids, ", ")))
	}
	sort.Strings(parts)
	return "urgency disagreement: " + strings.Join(parts, " vs ")
}

func opinionsReporting(opinions []types.Opinion, diagnosis string) []string {
	var ids []string
	for _, op := range opinions {
		for _, d := range op.Finding.Diagnoses {
			if d == diagnosis {
				ids = append(ids, op.BackendID)
				break
			}
		}
	}
	return ids
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
