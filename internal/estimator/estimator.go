// Package estimator guesses how many use cases a passage plausibly contains
// and sizes the LLM token budget accordingly.
//
// The heuristics are deliberately approximate. What callers can rely on are
// the bounds: SmartMax is always within [1, MaxUseCases] and TokenBudget is
// always within [MinTokenBudget, MaxTokenBudget].
package estimator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/reqengine/internal/usecase"
)

const (
	// MaxUseCases is the absolute ceiling on any estimate.
	MaxUseCases = 20

	MinTokenBudget = 300
	MaxTokenBudget = 1200

	tokensPerUseCase = 120
	tokenOverhead    = 80
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+`)
	andSplit      = regexp.MustCompile(`\band\b`)
	bulletLine    = regexp.MustCompile(`^\s*[-*•]\s+`)
	numberedLine  = regexp.MustCompile(`^\s*\d+\.\s+`)

	verbPatterns = compileVerbPatterns()
)

type verbPattern struct {
	modal  *regexp.Regexp
	suffix *regexp.Regexp
}

func compileVerbPatterns() []verbPattern {
	out := make([]verbPattern, 0, len(usecase.ActionVerbs))
	for _, v := range usecase.ActionVerbs {
		q := regexp.QuoteMeta(v)
		out = append(out, verbPattern{
			modal:  regexp.MustCompile(`\b(?:can|should|must|may|will|shall)\s+` + q + `\b`),
			suffix: regexp.MustCompile(`\b` + q + `(?:s|ed|ing)?\b`),
		})
	}
	return out
}

// Details records the signals behind an estimate.
type Details struct {
	CharCount           int   `json:"char_count"`
	Sentences           int   `json:"sentences"`
	SentencesWithAction int   `json:"sentences_with_actions"`
	ActionCount         int   `json:"action_count"`
	UniqueActions       int   `json:"unique_actions"`
	Actors              int   `json:"actors"`
	CompoundActions     int   `json:"compound_actions"`
	ListItems           int   `json:"list_items"`
	Estimates           []int `json:"estimates"`
}

// Estimate returns the (min, max) use case count range for text.
// Empty text yields (1, 1).
func Estimate(text string) (int, int, Details) {
	lowered := strings.ToLower(text)
	d := Details{CharCount: len(text)}

	var sentences []string
	for _, s := range sentenceSplit.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	d.Sentences = len(sentences)

	// Each verb counts once however often it repeats.
	for _, p := range verbPatterns {
		if p.modal.MatchString(lowered) || p.suffix.MatchString(lowered) {
			d.ActionCount++
		}
	}
	d.UniqueActions = d.ActionCount

	for _, a := range usecase.Actors {
		if strings.Contains(lowered, a) {
			d.Actors++
		}
	}

	d.CompoundActions = CompoundActions(lowered)
	d.ListItems = ListItems(text)

	for _, s := range sentences {
		ls := strings.ToLower(s)
		if usecase.ContainsVerb(ls) || usecase.ContainsActor(ls) {
			d.SentencesWithAction++
		}
	}

	var est []int
	if d.ActionCount > 0 {
		switch {
		case d.CharCount < 150 && d.CompoundActions > d.UniqueActions:
			est = append(est, d.CompoundActions)
		case d.CharCount < 100:
			est = append(est, d.UniqueActions)
		default:
			est = append(est, int(min(float64(d.UniqueActions)*1.5, float64(d.ActionCount)*0.8)))
		}
	}
	if d.ListItems > 0 {
		est = append(est, d.ListItems)
	}
	if d.SentencesWithAction > 0 {
		est = append(est, int(float64(d.SentencesWithAction)*0.6))
	}
	est = append(est, max(1, d.CharCount/150))
	d.Estimates = est

	lo := max(1, minOf(est))
	hi := min(MaxUseCases, maxOf(est))
	switch {
	case d.CharCount < 100:
		hi = min(hi, 2)
	case d.CharCount < 500:
		hi = min(hi, 5)
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi, d
}

// SmartMax derives the single target count passed to the extraction prompt.
func SmartMax(text string) int {
	lo, hi, d := Estimate(text)
	chars := d.CharCount
	shortCompound := chars < 150 && d.CompoundActions >= 2

	var n int
	switch {
	case shortCompound:
		n = d.CompoundActions
	case chars > 2000:
		n = hi
	case d.UniqueActions > 0:
		n = min(int(float64(d.UniqueActions)*1.5), hi)
	default:
		n = lo
	}

	switch {
	case shortCompound:
		n = max(n, d.CompoundActions)
	case chars < 100:
		n = min(n, 2)
	case chars < 500:
		n = min(n, 5)
	case chars < 2000:
		n = min(n, 10)
	default:
		n = min(n, MaxUseCases)
	}

	switch {
	case chars < 200:
		n = max(1, n)
	default:
		n = max(2, n)
	}
	return min(n, MaxUseCases)
}

// TokenBudget sizes max_new_tokens for n expected use cases.
func TokenBudget(n int) int {
	return clamp(n*tokensPerUseCase+tokenOverhead, MinTokenBudget, MaxTokenBudget)
}

// CompoundActions counts "and"-separated segments that carry an action verb.
// Text without a conjunction counts as one action.
func CompoundActions(lowered string) int {
	parts := andSplit.Split(lowered, -1)
	n := 0
	if len(parts) >= 2 {
		for _, p := range parts {
			if usecase.ContainsVerb(p) {
				n++
			}
		}
	}
	return max(1, n)
}

// ListItems counts bulleted or numbered lines.
func ListItems(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if bulletLine.MatchString(line) || numberedLine.MatchString(line) {
			n++
		}
	}
	return n
}

// Size is a document size class.
type Size string

const (
	SizeTiny      Size = "tiny"
	SizeSmall     Size = "small"
	SizeMedium    Size = "medium"
	SizeLarge     Size = "large"
	SizeVeryLarge Size = "very_large"
)

// Classify buckets a character count.
func Classify(chars int) Size {
	switch {
	case chars < 500:
		return SizeTiny
	case chars < 2000:
		return SizeSmall
	case chars < 8000:
		return SizeMedium
	case chars < 20000:
		return SizeLarge
	default:
		return SizeVeryLarge
	}
}

// NeedsChunking reports whether documents of this size take the chunked path.
func (s Size) NeedsChunking() bool {
	return s == SizeLarge || s == SizeVeryLarge
}

// Summary is a human readable line for logs and the CLI.
func (d Details) Summary() string {
	return fmt.Sprintf("%d chars, %d sentences, %d unique actions, %d compound, %d list items",
		d.CharCount, d.Sentences, d.UniqueActions, d.CompoundActions, d.ListItems)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func minOf(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		m = min(m, x)
	}
	return m
}

func maxOf(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		m = max(m, x)
	}
	return m
}
