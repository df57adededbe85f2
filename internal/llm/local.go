package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/reqengine/internal/prompt"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/reqengine/internal/llm")

// Local talks to a text-generation-inference compatible /generate endpoint.
type Local struct {
	baseURL    string
	model      string
	dialect    prompt.Dialect
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// NewLocal creates a Local backend. cfg defaults are assumed applied.
func NewLocal(cfg Config, dialect prompt.Dialect) *Local {
	cfg = cfg.withDefaults()
	return &Local{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dialect:    dialect,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), defaultBurst),
		maxRetries: cfg.MaxRetries,
	}
}

func (l *Local) Name() string { return KindLocal }

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

type generateParameters struct {
	MaxNewTokens      int      `json:"max_new_tokens"`
	Temperature       float64  `json:"temperature,omitempty"`
	TopP              float64  `json:"top_p,omitempty"`
	RepetitionPenalty float64  `json:"repetition_penalty,omitempty"`
	DoSample          bool     `json:"do_sample"`
	ReturnFullText    bool     `json:"return_full_text"`
	Stop              []string `json:"stop,omitempty"`
}

type generateResponse struct {
	GeneratedText string `json:"generated_text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Complete renders p with the configured dialect and generates a completion.
func (l *Local) Complete(ctx context.Context, p prompt.Prompt, opts Options) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.local.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", l.model),
		attribute.String("prompt.kind", string(p.Kind)),
		attribute.Int("llm.max_tokens", opts.MaxTokens),
	)

	if err := l.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter")
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	req := generateRequest{
		Inputs: l.dialect.Render(p),
		Parameters: generateParameters{
			MaxNewTokens:      opts.MaxTokens,
			Temperature:       opts.Temperature,
			TopP:              opts.TopP,
			RepetitionPenalty: opts.RepetitionPenalty,
			DoSample:          opts.Temperature > 0,
			ReturnFullText:    false,
			Stop:              []string{"<|eot_id|>"},
		},
	}

	start := time.Now()
	out, err := withRetry(ctx, l.maxRetries, func() (string, error) {
		return l.doRequest(ctx, req)
	})
	recordCall(ctx, l.Name(), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", err
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func (l *Local) doRequest(ctx context.Context, req generateRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("generate request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return "", fmt.Errorf("generate error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return "", fmt.Errorf("generate error (%d): %s", resp.StatusCode, string(body))
	}

	text, err := parseGenerated(body)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// parseGenerated accepts both the TGI object form and the list form served
// by hosted inference endpoints.
func parseGenerated(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var list []generateResponse
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if len(list) == 0 {
			return "", ErrEmptyCompletion
		}
		return list[0].GeneratedText, nil
	}
	var single generateResponse
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return single.GeneratedText, nil
}

var _ Backend = (*Local)(nil)
