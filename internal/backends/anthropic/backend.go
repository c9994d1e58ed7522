package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/diag-router/internal/backends"
)

// Config holds Anthropic account-level settings shared by all
// Anthropic-driven backends.
type Config struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Backend drives one configured backend through the Anthropic API
type Backend struct {
	id     string
	model  string
	client *anthropic.Client
	logger *logrus.Logger
}

// New creates an Anthropic-backed invoker for one backend descriptor
func New(id, model string, cfg *Config, logger *logrus.Logger) *Backend {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	client := anthropic.NewClient(opts...)

	return &Backend{
		id:     id,
		model:  model,
		client: &client,
		logger: logger,
	}
}

// ID returns the backend identifier this invoker serves
func (b *Backend) ID() string {
	return b.id
}

// Invoke performs one completion call. API errors carrying an HTTP status
// come back as a Response for the executor to judge; transport failures
// surface as err.
func (b *Backend) Invoke(ctx context.Context, inv *backends.Invocation) (*backends.Response, error) {
	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		Messages:  []anthropic.MessageParam{b.buildMessage(inv)},
		MaxTokens: 4096, // Anthropic requires max_tokens
	}
	applyParams(&req, inv.Params)

	start := time.Now()
	resp, err := b.client.Messages.New(ctx, req)
	latency := time.Since(start)

	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
			return &backends.Response{
				StatusCode: apiErr.StatusCode,
				Body:       apiErr.Error(),
				Latency:    latency,
			}, nil
		}
		b.logger.WithError(err).WithField("backend", b.id).Error("Anthropic call failed")
		return nil, fmt.Errorf("anthropic call failed: %w", err)
	}

	var body strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			body.WriteString(block.Text)
		}
	}

	return &backends.Response{
		StatusCode: 200,
		Body:       body.String(),
		TokensUsed: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		Latency:    latency,
	}, nil
}

// buildMessage assembles the user message, attaching binary content as a
// base64 image block when present.
func (b *Backend) buildMessage(inv *backends.Invocation) anthropic.MessageParam {
	if len(inv.Attachment) == 0 {
		return anthropic.NewUserMessage(anthropic.NewTextBlock(inv.Prompt))
	}

	mime := inv.AttachmentMIME
	if mime == "" {
		mime = "image/png"
	}
	encoded := base64.StdEncoding.EncodeToString(inv.Attachment)

	return anthropic.NewUserMessage(
		anthropic.NewTextBlock(inv.Prompt),
		anthropic.NewImageBlockBase64(mime, encoded),
	)
}

// applyParams maps the opaque invocation parameters onto the Anthropic
// request. Reasoning effort has no direct Anthropic knob; high effort
// widens the output budget instead.
func applyParams(req *anthropic.MessageNewParams, params map[string]string) {
	for key, value := range params {
		switch key {
		case backends.ParamTemperature:
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				req.Temperature = anthropic.Float(f)
			}
		case backends.ParamMaxTokens:
			if n, err := strconv.Atoi(value); err == nil {
				req.MaxTokens = int64(n)
			}
		case backends.ParamReasoningEffort:
			if value == "high" {
				req.MaxTokens = 8192
			}
		}
	}
}

var _ backends.Invoker = (*Backend)(nil)
