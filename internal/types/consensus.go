package types

// Urgency is the triage level extracted from a backend answer
type Urgency string

const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// SeverityRank orders urgencies for tie-breaking; higher is more severe.
// Unknown values rank below routine.
func (u Urgency) SeverityRank() int {
	switch u {
	case UrgencyCritical:
		return 3
	case UrgencyUrgent:
		return 2
	case UrgencyRoutine:
		return 1
	}
	return 0
}

// Finding is the structured projection of one backend's free-text answer.
// It is derived, not authoritative: purely a pattern-matched view of
// RawText used to compare opinions.
type Finding struct {
	Diagnoses        []string `json:"diagnoses"`
	Urgency          Urgency  `json:"urgency,omitempty"`
	Codes            []string `json:"codes,omitempty"`
	CriticalExcerpts []string `json:"critical_excerpts,omitempty"`
}

// Opinion pairs one backend's raw answer with its extracted finding
type Opinion struct {
	BackendID string  `json:"backend_id"`
	Finding   Finding `json:"finding"`
	RawText   string  `json:"raw_text"`
}

// ConsensusResult reconciles several independent backend answers to the
// same request. Available is true only when at least two backends
// produced an answer; with exactly one answer the raw text is exposed as
// a degraded single-opinion result instead of failing the request.
type ConsensusResult struct {
	Available       bool      `json:"available"`
	MergedText      string    `json:"merged_text,omitempty"`
	CommonDiagnoses []string  `json:"common_diagnoses"`
	Urgency         Urgency   `json:"urgency,omitempty"`
	Discrepancies   []string  `json:"discrepancies"`
	AgreementRatio  float64   `json:"agreement_ratio"`
	Opinions        []Opinion `json:"opinions"`

	// Failed panel calls, kept for diagnostics
	Failures []InvocationResult `json:"failures,omitempty"`
}
