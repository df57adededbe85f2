package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/reqengine/internal/usecase"
)

const (
	minSentenceLength = 20
	maxObjectLength   = 80
	minObjectChars    = 5
	maxObjectChars    = 100
	minFallbackTitle  = 15
)

// actorPatterns holds the three sentence templates for one actor. Each
// pattern captures (verb, object).
type actorPatterns struct {
	actor    string
	patterns []*regexp.Regexp
}

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+`)
	objectTail    = regexp.MustCompile(`\s+(?:and|or|but|if|when|after|before|to|that|which|for now)\b.*$`)

	fallbackPatterns = compileFallbackPatterns()
)

func compileFallbackPatterns() []actorPatterns {
	out := make([]actorPatterns, 0, len(usecase.Actors))
	for _, actor := range usecase.Actors {
		a := regexp.QuoteMeta(actor) + `s?`
		out = append(out, actorPatterns{
			actor: actor,
			patterns: []*regexp.Regexp{
				// "users should be able to track their orders"
				regexp.MustCompile(`\b` + a + `\s+(?:(?:should|can|must|may|will|shall)(?:\s+be\s+able\s+to)?|needs?\s+to|(?:is|are)\s+able\s+to)\s+([a-z]+)\s+([^,.]+)`),
				// "platform should let users find products"
				regexp.MustCompile(`\b(?:platform|system|application|app)\s+should\s+(?:let|allow)\s+` + a + `\s+([a-z]+)\s+([^,.]+)`),
				// "customers track their orders"
				regexp.MustCompile(`\b` + a + `\s+([a-z]+)\s+(?:the|their|a|an)\s+([^,.]+)`),
			},
		})
	}
	return out
}

// Fallback extracts use cases from text without an LLM by matching
// actor/verb/object sentence templates. It returns at most FallbackLimit
// records, deduplicated by lowercase title, and never nil.
func Fallback(text string) []usecase.UseCase {
	out := []usecase.UseCase{}
	seen := make(map[string]struct{})

	for _, raw := range sentenceSplit.Split(text, -1) {
		sentence := strings.TrimSpace(raw)
		if len(sentence) <= minSentenceLength {
			continue
		}
		lowered := strings.ToLower(sentence)

		for _, ap := range fallbackPatterns {
			for _, re := range ap.patterns {
				for _, m := range re.FindAllStringSubmatch(lowered, -1) {
					uc, ok := fallbackUseCase(ap.actor, m[1], m[2])
					if !ok {
						continue
					}
					key := strings.ToLower(strings.TrimSpace(uc.Title))
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					out = append(out, uc)
					if len(out) >= FallbackLimit {
						return out
					}
				}
			}
		}
	}
	return out
}

// fallbackUseCase builds a templated record, or reports false when the
// verb is unknown or the object is out of range.
func fallbackUseCase(actor, verb, object string) (usecase.UseCase, bool) {
	verb = strings.TrimSpace(verb)
	if !knownVerbForm(verb) {
		return usecase.UseCase{}, false
	}

	object = strings.TrimSpace(object)
	if utf8.RuneCountInString(object) > maxObjectLength {
		object = string([]rune(object)[:maxObjectLength])
	}
	object = strings.TrimSpace(objectTail.ReplaceAllString(object, ""))
	if n := utf8.RuneCountInString(object); n < minObjectChars || n > maxObjectChars {
		return usecase.UseCase{}, false
	}

	name := usecase.Capitalize(actor)
	title := fmt.Sprintf("%s %s %s", name, verb, object)
	if utf8.RuneCountInString(title) < minFallbackTitle {
		return usecase.UseCase{}, false
	}

	return usecase.UseCase{
		Title: title,
		Preconditions: []string{
			name + " is authenticated and authorized",
			"System is operational and responsive",
		},
		MainFlow: []string{
			name + " navigates to the relevant section",
			fmt.Sprintf("%s initiates the %s action", name, verb),
			"System validates the request",
			"System processes " + object,
			"System confirms completion to the " + actor,
			name + " receives confirmation",
		},
		SubFlows: []string{
			name + " can view additional details",
			name + " can customize preferences",
		},
		AlternateFlows: []string{
			"If validation fails: System displays an error and prompts for correction",
			"If the system times out: System retries and notifies the " + actor,
		},
		Outcomes: []string{
			title + " completed successfully",
			"System state is updated",
		},
		Stakeholders: []string{name, "System"},
	}, true
}

// knownVerbForm accepts a base-form action verb or its -s/-es/-ed/-ing form.
func knownVerbForm(verb string) bool {
	if usecase.IsActionVerb(verb) {
		return true
	}
	for _, suffix := range []string{"ing", "ed", "es", "s"} {
		if stem, ok := strings.CutSuffix(verb, suffix); ok && len(stem) > 2 && usecase.IsActionVerb(stem) {
			return true
		}
	}
	return false
}
