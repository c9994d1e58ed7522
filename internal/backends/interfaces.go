package backends

import (
	"context"
	"time"
)

// Invocation carries everything a backend needs for one completion call.
// Params are opaque key/value pairs chosen by the routing policy; each
// invoker interprets the keys it understands and ignores the rest.
type Invocation struct {
	Prompt         string
	Attachment     []byte
	AttachmentMIME string
	Params         map[string]string
}

// Well-known invocation parameter keys
const (
	ParamReasoningEffort = "reasoning_effort"
	ParamLatencyProfile  = "latency_profile"
	ParamTemperature     = "temperature"
	ParamMaxTokens       = "max_tokens"
)

// Response is the uniform wire-level result of a backend call. A non-2xx
// StatusCode or an error-shaped Body counts as failure even when the
// transport succeeded; that judgement belongs to the fallback executor,
// not to the invoker.
type Response struct {
	StatusCode int
	Body       string
	TokensUsed int
	Latency    time.Duration
}

// Invoker is the single seam to an external completion service. Transport
// errors and timeouts are returned as err; soft failures come back as a
// Response for the caller to judge.
type Invoker interface {
	ID() string
	Invoke(ctx context.Context, inv *Invocation) (*Response, error)
}
