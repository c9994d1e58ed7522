package types

import (
	"time"
)

// Category is the inferred kind of diagnostic request (e.g. "radiology",
// "lab_report"). Categories key the quality checklists and influence
// backend tier selection.
type Category string

const (
	// CategoryGeneral is the fallback category when no keyword table matches
	CategoryGeneral Category = "general"
)

// ConsultRequest is one inbound unit of work: a free-text instruction plus
// an optional opaque binary attachment. Attachment decoding is handled by
// the upstream layers; this layer passes it through to the backends as-is.
type ConsultRequest struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	Attachment     []byte    `json:"attachment,omitempty"`
	AttachmentMIME string    `json:"attachment_mime,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// InvocationAttempt records one backend call attempt, successful or not.
// Attempts are kept for diagnostics and never mutated after creation.
type InvocationAttempt struct {
	BackendID  string        `json:"backend_id"`
	Succeeded  bool          `json:"succeeded"`
	Error      string        `json:"error,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency"`
}

// InvocationResult is the outcome of executing one routing decision,
// including the full fallback chain walk. RawText is only meaningful when
// Succeeded is true.
type InvocationResult struct {
	BackendID  string        `json:"backend_id"`
	RawText    string        `json:"raw_text,omitempty"`
	Succeeded  bool          `json:"succeeded"`
	Error      string        `json:"error,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency"`
	TokensUsed int           `json:"tokens_used"`

	// One entry per backend tried, in order
	Attempts []InvocationAttempt `json:"attempts,omitempty"`
}
