package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reqengine/internal/config"
	"github.com/fyrsmithlabs/reqengine/internal/embeddings"
	"github.com/fyrsmithlabs/reqengine/internal/events"
	"github.com/fyrsmithlabs/reqengine/internal/inference"
	"github.com/fyrsmithlabs/reqengine/internal/llm"
	"github.com/fyrsmithlabs/reqengine/internal/logging"
	"github.com/fyrsmithlabs/reqengine/internal/pipeline"
	"github.com/fyrsmithlabs/reqengine/internal/secrets"
	"github.com/fyrsmithlabs/reqengine/internal/session"
	"github.com/fyrsmithlabs/reqengine/internal/telemetry"
	"github.com/fyrsmithlabs/reqengine/internal/vectorstore"
)

// app holds everything the serve command wires together.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	store     *session.Store
	embedder  embeddings.Provider
	index     *vectorstore.Index
	publisher *events.Publisher
	svc       *pipeline.Service
}

// newApp initializes, in order:
//  1. the secret scrubber shared by logs and hosted prompts
//  2. telemetry and the logger on top of it
//  3. the session store
//  4. the LLM backend and the embedding provider
//  5. the vector index and, when enabled, the NATS event publisher
//  6. the pipeline service
//
// On error everything opened so far is closed.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	scrubber, err := newScrubber(cfg.Secrets)
	if err != nil {
		return nil, err
	}

	a.telemetry, err = telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	logCfg.Redaction.Scrubber = scrubber
	logCfg.Output.OTEL = a.telemetry.IsEnabled()
	if a.logger, err = logging.NewLogger(logCfg, a.telemetry.LoggerProvider()); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if a.store, err = session.Open(session.Config{Path: cfg.Session.Path}); err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	backend, err := llm.New(llmConfig(cfg.LLM), scrubber)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm backend: %w", err)
	}

	a.embedder, err = embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		CacheDir:  cfg.Embeddings.CacheDir,
		Dimension: cfg.Embeddings.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	vectorSize := cfg.Index.VectorSize
	if dim := a.embedder.Dimension(); dim > 0 {
		vectorSize = dim
	}
	a.index, err = vectorstore.Open(vectorstore.Config{
		Backend:    cfg.Index.Backend,
		Path:       cfg.Index.Path,
		Compress:   cfg.Index.Compress,
		Host:       cfg.Index.Host,
		Port:       cfg.Index.Port,
		APIKey:     cfg.Index.APIKey.Value(),
		UseTLS:     cfg.Index.UseTLS,
		Collection: cfg.Index.Collection,
		VectorSize: vectorSize,
	}, a.store, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}

	var sink events.Sink
	if cfg.Events.Enabled {
		a.publisher, err = events.Connect(events.Config{
			URL:           cfg.Events.URL,
			SubjectPrefix: cfg.Events.SubjectPrefix,
		}, a.logger.Underlying().Named("events"))
		if err != nil {
			return nil, err
		}
		sink = a.publisher
	}

	infer := inference.New(backend, a.embedder)
	a.svc, err = pipeline.New(pipeline.Deps{
		Completer: infer,
		Embedder:  infer,
		Store:     a.store,
		Index:     a.index.Index,
		Events:    sink,
	}, pipeline.Config{ChunkMaxTokens: cfg.Chunking.MaxTokens}, a.logger.Underlying().Named("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	a.logger.Info(ctx, "reqengine initialized",
		zap.String("llm_backend", backend.Name()),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("index", a.index.Backend),
		zap.Bool("telemetry", a.telemetry.IsEnabled()),
		zap.Bool("events", a.publisher != nil))
	return a, nil
}

// Close releases resources in reverse order of creation.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logger != nil {
		_ = a.logger.Sync() // Best-effort sync
	}
	if a.telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		errs = append(errs, a.telemetry.Shutdown(shutdownCtx))
	}
	return errors.Join(errs...)
}

// newScrubber builds the scrubber from the secrets section. Its own
// logger stays silent so scrubbing a log line never logs again.
func newScrubber(s config.SecretsConfig) (*secrets.Scrubber, error) {
	sc := secrets.DefaultConfig()
	sc.Enabled = s.Enabled
	sc.Gitleaks = s.Gitleaks
	sc.AllowlistPath = s.AllowlistPath
	scrubber, err := secrets.New(sc, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret scrubber: %w", err)
	}
	return scrubber, nil
}

func llmConfig(s config.LLMConfig) llm.Config {
	return llm.Config{
		Backend:           s.Backend,
		BaseURL:           s.BaseURL,
		Model:             s.Model,
		APIKey:            s.APIKey.Value(),
		Dialect:           s.Dialect,
		Timeout:           s.Timeout.Duration(),
		MaxRetries:        s.MaxRetries,
		RequestsPerMinute: s.RequestsPerMinute,
	}
}
