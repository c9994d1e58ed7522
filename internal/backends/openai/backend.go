package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/diag-router/internal/backends"
)

// Config holds OpenAI account-level settings shared by all OpenAI-driven
// backends.
type Config struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	OrgID   string        `yaml:"org_id"`
	Timeout time.Duration `yaml:"timeout"`
}

// Backend drives one configured backend through the OpenAI API
type Backend struct {
	id     string
	model  string
	client *openai.Client
	logger *logrus.Logger
}

// New creates an OpenAI-backed invoker for one backend descriptor
func New(id, model string, cfg *Config, logger *logrus.Logger) *Backend {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.OrgID != "" {
		clientConfig.OrgID = cfg.OrgID
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Backend{
		id:     id,
		model:  model,
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger,
	}
}

// ID returns the backend identifier this invoker serves
func (b *Backend) ID() string {
	return b.id
}

// Invoke performs one completion call. API errors with an HTTP status are
// returned as a Response so the executor can judge them; only transport
// failures surface as err.
func (b *Backend) Invoke(ctx context.Context, inv *backends.Invocation) (*backends.Response, error) {
	req := openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: []openai.ChatCompletionMessage{b.buildMessage(inv)},
	}
	applyParams(&req, inv.Params)

	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, req)
	latency := time.Since(start)

	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
			// The backend answered, just not successfully; let the
			// executor classify it.
			return &backends.Response{
				StatusCode: apiErr.HTTPStatusCode,
				Body:       apiErr.Message,
				Latency:    latency,
			}, nil
		}
		b.logger.WithError(err).WithField("backend", b.id).Error("OpenAI call failed")
		return nil, fmt.Errorf("openai call failed: %w", err)
	}

	body := ""
	if len(resp.Choices) > 0 {
		body = resp.Choices[0].Message.Content
	}

	return &backends.Response{
		StatusCode: 200,
		Body:       body,
		TokensUsed: resp.Usage.TotalTokens,
		Latency:    latency,
	}, nil
}

// buildMessage assembles the user message, attaching binary content as an
// inline data URL when present. The attachment itself stays opaque to
// this layer.
func (b *Backend) buildMessage(inv *backends.Invocation) openai.ChatCompletionMessage {
	if len(inv.Attachment) == 0 {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: inv.Prompt,
		}
	}

	mime := inv.AttachmentMIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(inv.Attachment))

	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: inv.Prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
		},
	}
}

// applyParams maps the opaque invocation parameters onto the OpenAI
// request. Unknown keys are ignored.
func applyParams(req *openai.ChatCompletionRequest, params map[string]string) {
	for key, value := range params {
		switch key {
		case backends.ParamReasoningEffort:
			req.ReasoningEffort = value
		case backends.ParamTemperature:
			if f, err := strconv.ParseFloat(value, 32); err == nil {
				req.Temperature = float32(f)
			}
		case backends.ParamMaxTokens:
			if n, err := strconv.Atoi(value); err == nil {
				req.MaxTokens = n
			}
		case backends.ParamLatencyProfile:
			// Hint only; OpenAI has no direct knob for this
		}
	}
}

var _ backends.Invoker = (*Backend)(nil)
