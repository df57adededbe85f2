package extraction

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reqengine/internal/enrichment"
	"github.com/fyrsmithlabs/reqengine/internal/estimator"
	"github.com/fyrsmithlabs/reqengine/internal/llm"
	"github.com/fyrsmithlabs/reqengine/internal/normalize"
	"github.com/fyrsmithlabs/reqengine/internal/prompt"
	"github.com/fyrsmithlabs/reqengine/internal/usecase"
)

// Sampling used for extraction and refinement calls.
var (
	extractOptions = llm.Options{Temperature: 0.3, TopP: 0.85, RepetitionPenalty: 1.1}
	refineOptions  = llm.Options{MaxTokens: 800, Temperature: 0.4, TopP: 0.9}
)

// Engine extracts use cases with an LLM and falls back to pattern matching.
type Engine struct {
	completer Completer
	logger    *zap.Logger
}

// NewEngine returns an Engine. A nil logger disables logging.
func NewEngine(completer Completer, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{completer: completer, logger: logger}
}

// Extract returns the use cases found in text. maxUseCases <= 0 lets the
// estimator choose the target. It never fails; the result may be empty.
func (e *Engine) Extract(ctx context.Context, text, memoryContext string, maxUseCases int) []usecase.UseCase {
	return e.Run(ctx, text, memoryContext, maxUseCases).UseCases
}

// Run is Extract with the details of how the result was produced.
func (e *Engine) Run(ctx context.Context, text, memoryContext string, maxUseCases int) Output {
	target := maxUseCases
	if target <= 0 {
		target = estimator.SmartMax(text)
	}
	out := Output{Target: target, TokenBudget: estimator.TokenBudget(target)}

	var res Result
	if useBatches(text, target) {
		out.Method = MethodBatch
		res = e.batches(ctx, text, memoryContext, target)
	} else {
		out.Method = MethodSingle
		res = e.single(ctx, text, memoryContext, target, out.TokenBudget)
	}

	if !res.OK() {
		e.logger.Warn("llm extraction failed, using fallback",
			zap.String("method", out.Method),
			zap.String("stage", res.Failure.Stage),
			zap.Error(res.Failure.Err))
		out.Method = MethodFallback
		out.Failure = res.Failure
		out.UseCases = Fallback(text)
		return out
	}

	out.UseCases = res.UseCases
	if len(out.UseCases) > target+TruncationSlack {
		e.logger.Debug("truncating over-generated use cases",
			zap.Int("got", len(out.UseCases)),
			zap.Int("target", target))
		out.UseCases = out.UseCases[:target]
	}
	return out
}

func useBatches(text string, target int) bool {
	return target >= BatchMinTarget && len(text)/4 > BatchMinTokens
}

func (e *Engine) single(ctx context.Context, text, memoryContext string, target, budget int) Result {
	p := prompt.Extract(text, memoryContext, target)
	opts := extractOptions
	opts.MaxTokens = budget

	raw, err := e.completer.Complete(ctx, p, opts)
	if err != nil {
		return failed(StageRequest, err)
	}
	return ParseList(raw, p.Prime, text)
}

// batches issues ceil(target/BatchSize) calls. A failing batch is logged
// and skipped; titles from earlier batches are added to the memory context
// of later ones.
func (e *Engine) batches(ctx context.Context, text, memoryContext string, target int) Result {
	var all []usecase.UseCase
	var lastFailure *Failure

	for done, n := 0, 0; done < target; done += BatchSize {
		n++
		k := min(BatchSize, target-done)
		p := prompt.Batch(text, withPrevious(memoryContext, all), k)
		opts := extractOptions
		opts.MaxTokens = k*150 + 100

		raw, err := e.completer.Complete(ctx, p, opts)
		var res Result
		if err != nil {
			res = failed(StageRequest, err)
		} else {
			res = ParseList(raw, p.Prime, text)
		}

		if !res.OK() {
			lastFailure = res.Failure
			e.logger.Warn("batch extraction failed",
				zap.Int("batch", n),
				zap.Int("requested", k),
				zap.String("stage", res.Failure.Stage),
				zap.Error(res.Failure.Err))
			continue
		}
		all = append(all, res.UseCases...)
	}

	if len(all) == 0 {
		if lastFailure == nil {
			lastFailure = &Failure{Stage: StageEmpty, Err: ErrNoUseCases}
		}
		return Result{Failure: lastFailure}
	}
	return Result{UseCases: all}
}

func withPrevious(memoryContext string, prior []usecase.UseCase) string {
	if len(prior) == 0 {
		return memoryContext
	}
	var b strings.Builder
	if memoryContext != "" {
		b.WriteString(memoryContext)
		b.WriteString("\n\n")
	}
	b.WriteString("Already extracted in this request (do not repeat):\n")
	for _, uc := range prior {
		b.WriteString("- ")
		b.WriteString(uc.Title)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// ParseList turns a raw completion into enriched use cases. prime is the
// text the prompt opened the answer with; it is restored unless the
// completion already repeats it. Elements that are not objects or whose
// title is shorter than MinTitleLength are dropped.
func ParseList(raw, prime, source string) Result {
	reply := strings.TrimSpace(raw)
	body := reply
	if prime != "" && !strings.HasPrefix(body, prime) {
		body = prime + body
	}

	v, err := normalize.Decode(normalize.CleanJSON(body))
	if err != nil && body != reply {
		// The model ignored the prime and wrote its own preamble.
		if alt, altErr := normalize.Decode(normalize.CleanJSON(reply)); altErr == nil {
			v, err = alt, nil
		}
	}
	if err != nil {
		return failed(StageParse, err)
	}
	items, ok := v.([]any)
	if !ok {
		return failed(StageShape, ErrNotList)
	}

	var out []usecase.UseCase
	for _, item := range items {
		uc, ok := normalize.FlattenAny(item)
		if !ok || len([]rune(strings.TrimSpace(uc.Title))) < MinTitleLength {
			continue
		}
		out = append(out, enrichment.Enrich(uc, source))
	}
	if len(out) == 0 {
		return failed(StageEmpty, ErrNoUseCases)
	}
	return Result{UseCases: out}
}

// Refine asks the LLM to expand one field category of uc and returns the
// replacement record. Unlike Extract it reports failures, since there is
// no meaningful fallback for a targeted edit.
func (e *Engine) Refine(ctx context.Context, uc usecase.UseCase, kind string) (usecase.UseCase, error) {
	p, err := prompt.Refine(uc, kind)
	if err != nil {
		return usecase.UseCase{}, err
	}

	raw, err := e.completer.Complete(ctx, p, refineOptions)
	if err != nil {
		return usecase.UseCase{}, fmt.Errorf("refining use case: %w", err)
	}

	refined, err := ParseObject(raw)
	if err != nil {
		e.logger.Warn("refinement reply unusable", zap.String("kind", kind), zap.Error(err))
		return usecase.UseCase{}, err
	}
	return refined, nil
}

// ParseObject decodes a single use case from a completion. An array root
// yields its first object element. A reply that continues an already
// opened object is retried with the opening brace restored.
func ParseObject(raw string) (usecase.UseCase, error) {
	body := strings.TrimSpace(raw)
	uc, err := decodeObject(body)
	if err == nil || strings.HasPrefix(body, "{") {
		return uc, err
	}
	if primed, perr := decodeObject("{" + body); perr == nil {
		return primed, nil
	}
	return usecase.UseCase{}, err
}

func decodeObject(body string) (usecase.UseCase, error) {
	v, err := normalize.Decode(normalize.CleanJSON(body))
	if err != nil {
		return usecase.UseCase{}, &Failure{Stage: StageParse, Err: err}
	}
	if items, ok := v.([]any); ok {
		for _, item := range items {
			if m, ok := useCaseObject(item); ok {
				return normalize.Flatten(m), nil
			}
		}
		return usecase.UseCase{}, &Failure{Stage: StageShape, Err: ErrNotObject}
	}
	m, ok := useCaseObject(v)
	if !ok {
		return usecase.UseCase{}, &Failure{Stage: StageShape, Err: ErrNotObject}
	}
	return normalize.Flatten(m), nil
}

// useCaseObject returns v as an object when it carries at least one use
// case field.
func useCaseObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	if _, ok := m[usecase.FieldTitle]; ok {
		return m, true
	}
	for _, f := range usecase.ListFields {
		if _, ok := m[f]; ok {
			return m, true
		}
	}
	return nil, false
}
