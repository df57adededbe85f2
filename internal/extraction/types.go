package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/reqengine/internal/llm"
	"github.com/fyrsmithlabs/reqengine/internal/prompt"
	"github.com/fyrsmithlabs/reqengine/internal/usecase"
)

// Tuning constants.
const (
	// MinTitleLength is the shortest title kept from LLM output.
	MinTitleLength = 10

	// TruncationSlack is how far the result count may exceed the target
	// before it is cut back to the target.
	TruncationSlack = 2

	// BatchSize is the number of use cases requested per batch call.
	BatchSize = 3

	// BatchMinTarget and BatchMinTokens gate batch mode: the target must
	// reach BatchMinTarget and the input must exceed BatchMinTokens
	// estimated tokens.
	BatchMinTarget = 4
	BatchMinTokens = 300

	// FallbackLimit caps the number of fallback use cases.
	FallbackLimit = 15
)

// Extraction methods reported in Output.
const (
	MethodSingle   = "single_stage"
	MethodBatch    = "batch"
	MethodFallback = "fallback"
)

// Failure stages.
const (
	StageRequest = "request"
	StageParse   = "parse"
	StageShape   = "shape"
	StageEmpty   = "empty"
)

var (
	// ErrNotList is reported when the repaired output is not a JSON array.
	ErrNotList = errors.New("completion root is not a list")

	// ErrNoUseCases is reported when no element survived validation.
	ErrNoUseCases = errors.New("no usable use cases in completion")

	// ErrNotObject is reported when a refinement reply holds no object.
	ErrNotObject = errors.New("completion holds no use case object")
)

// Completer produces raw text for a prompt. llm.Backend and
// inference.Service both satisfy it.
type Completer interface {
	Complete(ctx context.Context, p prompt.Prompt, opts llm.Options) (string, error)
}

// Failure describes why the LLM stage produced nothing usable.
type Failure struct {
	Stage string
	Err   error
}

func (f *Failure) Error() string { return fmt.Sprintf("%s: %v", f.Stage, f.Err) }

func (f *Failure) Unwrap() error { return f.Err }

// Result is the outcome of one LLM parse stage: UseCases on success,
// Failure otherwise. Exactly one of the two is set.
type Result struct {
	UseCases []usecase.UseCase
	Failure  *Failure
}

// OK reports whether the stage succeeded.
func (r Result) OK() bool { return r.Failure == nil }

func failed(stage string, err error) Result {
	return Result{Failure: &Failure{Stage: stage, Err: err}}
}

// Output is everything one extraction produced.
type Output struct {
	UseCases    []usecase.UseCase
	Target      int
	TokenBudget int
	Method      string
	// Failure is set when Method is MethodFallback.
	Failure *Failure
}
