package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/reqengine/internal/prompt"
)

// Backend kinds.
const (
	KindLocal  = "local"
	KindHosted = "hosted"
)

const (
	defaultLocalBaseURL = "http://localhost:8080"
	defaultLocalModel   = "meta-llama/Llama-3.2-3B-Instruct"
	defaultHostedModel  = "gpt-4o-mini"
	defaultTimeout      = 120 * time.Second
	defaultMaxRetries   = 3
	defaultBaseBackoff  = 1 * time.Second
	defaultRPM          = 50.0
	defaultBurst        = 5
)

var (
	// ErrEmptyCompletion is returned when the backend answered with no text.
	ErrEmptyCompletion = errors.New("empty completion")

	// ErrInvalidConfig indicates an unusable backend configuration.
	ErrInvalidConfig = errors.New("invalid llm configuration")
)

// Options are per-call sampling parameters.
type Options struct {
	MaxTokens         int
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
}

// Backend completes prompts.
type Backend interface {
	// Complete returns the raw generated text for p. The prime of p is not
	// included in the returned text.
	Complete(ctx context.Context, p prompt.Prompt, opts Options) (string, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}

// Scrubber redacts secrets from text leaving the process.
type Scrubber interface {
	Scrub(text string) string
}

// Config selects and configures a backend.
type Config struct {
	Backend           string
	BaseURL           string
	Model             string
	APIKey            string `json:"-"`
	Dialect           string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerMinute float64
}

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = KindLocal
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = defaultRPM
	}
	if c.Model == "" {
		if c.Backend == KindHosted {
			c.Model = defaultHostedModel
		} else {
			c.Model = defaultLocalModel
		}
	}
	if c.BaseURL == "" && c.Backend == KindLocal {
		c.BaseURL = defaultLocalBaseURL
	}
	return c
}

// New builds the backend named by cfg.Backend. scrubber may be nil; it is
// applied to prompts sent to hosted APIs.
func New(cfg Config, scrubber Scrubber) (Backend, error) {
	cfg = cfg.withDefaults()
	switch cfg.Backend {
	case KindLocal:
		dialect, err := prompt.DialectByName(cfg.Dialect)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return NewLocal(cfg, dialect), nil
	case KindHosted:
		return NewHostedChat(cfg, scrubber)
	}
	return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
}

// retryableError marks an error as safe to retry.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// withRetry runs fn until it succeeds, fails permanently, or maxRetries
// retries are exhausted.
func withRetry(ctx context.Context, maxRetries int, fn func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}
