package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/reqengine/internal/prompt"
)

// HostedChat sends prompts to an OpenAI-compatible chat completion API.
type HostedChat struct {
	model      llms.Model
	modelName  string
	scrubber   Scrubber
	limiter    *rate.Limiter
	maxRetries int
	timeout    time.Duration
}

// NewHostedChat creates a HostedChat backend using langchaingo's OpenAI
// client. An API key is required.
func NewHostedChat(cfg Config, scrubber Scrubber) (*HostedChat, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: hosted backend requires an API key", ErrInvalidConfig)
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return NewHostedChatWithModel(client, cfg, scrubber), nil
}

// NewHostedChatWithModel wraps an existing langchaingo model.
func NewHostedChatWithModel(model llms.Model, cfg Config, scrubber Scrubber) *HostedChat {
	cfg = cfg.withDefaults()
	return &HostedChat{
		model:      model,
		modelName:  cfg.Model,
		scrubber:   scrubber,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), defaultBurst),
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.Timeout,
	}
}

func (h *HostedChat) Name() string { return KindHosted }

// Complete sends the system and user parts of p as chat messages.
func (h *HostedChat) Complete(ctx context.Context, p prompt.Prompt, opts Options) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.hosted.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", h.modelName),
		attribute.String("prompt.kind", string(p.Kind)),
		attribute.Int("llm.max_tokens", opts.MaxTokens),
	)

	if err := h.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter")
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	messages := make([]llms.MessageContent, 0, 2)
	for _, m := range prompt.Messages(p) {
		content := m.Content
		if h.scrubber != nil {
			content = h.scrubber.Scrub(content)
		}
		messages = append(messages, llms.TextParts(chatRole(m.Role), content))
	}

	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts.TopP > 0 {
		callOpts = append(callOpts, llms.WithTopP(opts.TopP))
	}

	start := time.Now()
	out, err := withRetry(ctx, h.maxRetries, func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()

		resp, err := h.model.GenerateContent(callCtx, messages, callOpts...)
		if err != nil {
			return "", classifyHostedError(err)
		}
		if resp == nil || len(resp.Choices) == 0 {
			return "", ErrEmptyCompletion
		}
		text := resp.Choices[0].Content
		if strings.TrimSpace(text) == "" {
			return "", ErrEmptyCompletion
		}
		return text, nil
	})
	recordCall(ctx, h.Name(), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", err
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func chatRole(r prompt.Role) schema.ChatMessageType {
	switch r {
	case prompt.RoleSystem:
		return schema.ChatMessageTypeSystem
	case prompt.RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}

// classifyHostedError marks network failures, timeouts, rate limiting and
// server errors as retryable. langchaingo surfaces status codes only in
// error text.
func classifyHostedError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &retryableError{err: err}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "500", "502", "503", "504", "timeout", "connection reset"} {
		if strings.Contains(msg, marker) {
			return &retryableError{err: err}
		}
	}
	return err
}

var _ Backend = (*HostedChat)(nil)
