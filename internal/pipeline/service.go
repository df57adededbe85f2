package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reqengine/internal/chunking"
	"github.com/fyrsmithlabs/reqengine/internal/dedup"
	"github.com/fyrsmithlabs/reqengine/internal/estimator"
	"github.com/fyrsmithlabs/reqengine/internal/events"
	"github.com/fyrsmithlabs/reqengine/internal/extraction"
	"github.com/fyrsmithlabs/reqengine/internal/session"
	"github.com/fyrsmithlabs/reqengine/internal/usecase"
	"github.com/fyrsmithlabs/reqengine/internal/validator"
)

const instrumentationName = "reqengine.pipeline"

// startSpan resolves the tracer on every call so a provider installed
// after package init is honored.
func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name)
}

var (
	// ErrEmptyText is returned for blank requirement text.
	ErrEmptyText = errors.New("text is empty")

	// ErrEmptyQuestion is returned for a blank query.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrInvalidConfig is returned when required dependencies are missing.
	ErrInvalidConfig = errors.New("invalid pipeline config")
)

// Deps are the collaborators of a Service.
type Deps struct {
	// Completer runs LLM prompts. inference.Service satisfies it.
	Completer extraction.Completer
	// Embedder produces the vectors used for duplicate detection.
	Embedder dedup.Embedder
	// Store persists sessions and use cases.
	Store *session.Store
	// Index holds use case vectors. Nil means the store itself.
	Index dedup.Index
	// Events receives lifecycle events. Nil drops them.
	Events events.Sink
}

// Config tunes a Service.
type Config struct {
	// ChunkMaxTokens bounds each chunk of a large document.
	ChunkMaxTokens int
}

// Service implements the document, refine, query and session operations.
type Service struct {
	completer extraction.Completer
	embedder  dedup.Embedder
	store     *session.Store
	engine    *extraction.Engine
	detector  *dedup.Detector
	chunker   *chunking.Chunker
	events    events.Sink
	logger    *zap.Logger
	now       func() time.Time
}

// New builds a Service. A nil logger disables logging.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Service, error) {
	if deps.Completer == nil {
		return nil, fmt.Errorf("%w: completer is required", ErrInvalidConfig)
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("%w: session store is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	index := deps.Index
	if index == nil {
		index = deps.Store
	}
	sink := deps.Events
	if sink == nil {
		sink = events.Nop{}
	}
	return &Service{
		completer: deps.Completer,
		embedder:  deps.Embedder,
		store:     deps.Store,
		engine:    extraction.NewEngine(deps.Completer, logger.Named("extraction")),
		detector:  dedup.NewDetector(deps.Embedder, index, logger.Named("dedup")),
		chunker:   chunking.New(cfg.ChunkMaxTokens),
		events:    sink,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Store exposes the session store.
func (s *Service) Store() *session.Store {
	return s.store
}

// Estimation is the sizing of a text before extraction.
type Estimation struct {
	Min             int               `json:"min_use_cases"`
	Max             int               `json:"max_use_cases"`
	SmartMax        int               `json:"smart_max_use_cases"`
	TokenBudget     int               `json:"token_budget"`
	SizeCategory    estimator.Size    `json:"size_category"`
	EstimatedTokens int               `json:"estimated_tokens"`
	NeedsChunking   bool              `json:"needs_chunking"`
	Details         estimator.Details `json:"details"`
}

// Estimate sizes text without calling a model.
func Estimate(text string) Estimation {
	lo, hi, d := estimator.Estimate(text)
	smart := estimator.SmartMax(text)
	size := estimator.Classify(len(text))
	return Estimation{
		Min:             lo,
		Max:             hi,
		SmartMax:        smart,
		TokenBudget:     estimator.TokenBudget(smart),
		SizeCategory:    size,
		EstimatedTokens: len(text) / 4,
		NeedsChunking:   size.NeedsChunking(),
		Details:         d,
	}
}

// Extraction is the stateless result of Extract.
type Extraction struct {
	UseCases    []usecase.UseCase  `json:"use_cases" yaml:"use_cases"`
	Validation  []ValidationResult `json:"validation_results" yaml:"validation_results"`
	Method      string             `json:"method" yaml:"method"`
	Target      int                `json:"target" yaml:"target"`
	TokenBudget int                `json:"token_budget" yaml:"token_budget"`
	Fallback    string             `json:"fallback_reason,omitempty" yaml:"fallback_reason,omitempty"`
}

// Extract runs extraction on text without touching any session.
// maxUseCases <= 0 lets the estimator choose.
func (s *Service) Extract(ctx context.Context, text string, maxUseCases int) (*Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	ctx, span := startSpan(ctx, "pipeline.Extract")
	defer span.End()

	out := s.engine.Run(ctx, text, "", maxUseCases)
	useCasesExtracted.WithLabelValues(out.Method).Add(float64(len(out.UseCases)))

	res := &Extraction{
		UseCases:    out.UseCases,
		Validation:  make([]ValidationResult, 0, len(out.UseCases)),
		Method:      out.Method,
		Target:      out.Target,
		TokenBudget: out.TokenBudget,
	}
	if out.Failure != nil {
		res.Fallback = out.Failure.Error()
	}
	for _, uc := range out.UseCases {
		res.Validation = append(res.Validation, validate(uc))
	}
	return res, nil
}

// ValidationResult is the per-use-case verdict attached to results.
type ValidationResult struct {
	Title        string           `json:"title" yaml:"title"`
	Status       validator.Status `json:"status" yaml:"status"`
	Issues       []string         `json:"issues" yaml:"issues"`
	QualityScore int              `json:"quality_score" yaml:"quality_score"`
}

func validate(uc usecase.UseCase) ValidationResult {
	ok, issues := validator.Validate(uc)
	status := validator.StatusValid
	if !ok {
		status = validator.StatusWithWarnings
	}
	return ValidationResult{
		Title:        uc.Title,
		Status:       status,
		Issues:       issues,
		QualityScore: validator.QualityScore(uc),
	}
}
