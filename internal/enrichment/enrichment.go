// Package enrichment fills thin use case fields with structural defaults,
// mined from the source requirements where possible.
//
// Enrich is additive only: existing values are never removed, reordered or
// rewritten, and running it twice yields the same record as running it once.
package enrichment

import (
	"strings"

	"github.com/fyrsmithlabs/reqengine/internal/usecase"
)

const (
	minTitleWords       = 3
	minPreconditions    = 2
	addedPreconditions  = 2
	minMainFlow         = 4
	targetMainFlow      = 5
	emptyMainFlowSteps  = 6
	minBranchFlows      = 2
	minStakeholders     = 2
	targetStakeholders  = 3
	stepPrefixLen       = 20
	defaultAction       = "perform action"
	defaultActor        = "User"
	systemStakeholder   = "System"
	databaseStakeholder = "Database"
)

var defaultPreconditions = []string{
	"User is authenticated and authorized",
	"System is operational and available",
	"Required data and services are accessible",
}

// keyword stakeholders, checked against the lowercased title.
var keywordStakeholders = []struct {
	keywords []string
	names    []string
}{
	{[]string{"admin", "manage"}, []string{"Administrator"}},
	{[]string{"pay", "purchase"}, []string{"Payment Gateway", "Financial System"}},
	{[]string{"email", "notification"}, []string{"Email Service"}},
	{[]string{"report", "analytics"}, []string{"Analytics System"}},
}

// Enrich returns a copy of uc with thin fields filled. source is the
// requirements text uc was extracted from and may be empty.
func Enrich(uc usecase.UseCase, source string) usecase.UseCase {
	out := uc.Clone()

	out.Title = enrichTitle(out)
	actor := Actor(out)

	out.Preconditions = enrichPreconditions(out.Preconditions)
	out.MainFlow = enrichMainFlow(out.MainFlow, out.Title, actor)

	if len(out.SubFlows) < minBranchFlows {
		out.SubFlows = appendUntil(out.SubFlows, ExtractOptionalFeatures(source), genericSubFlows(actor), minBranchFlows)
	}
	if len(out.AlternateFlows) < minBranchFlows {
		out.AlternateFlows = appendUntil(out.AlternateFlows, ExtractErrorCases(source), genericAlternateFlows(actor), minBranchFlows)
	}

	if len(usecase.Specified(usecase.FieldOutcomes, out.Outcomes)) == 0 {
		out.Outcomes = appendMissing(out.Outcomes, []string{
			out.Title + " is completed successfully",
			"System state is updated appropriately",
			"All changes are logged for audit purposes",
		}, -1)
	}

	if len(out.Stakeholders) < minStakeholders {
		out.Stakeholders = enrichStakeholders(out.Stakeholders, out.Title, actor)
	}
	return out
}

// enrichTitle prefixes short titles with the primary actor. A title that
// already starts with that actor is left alone so the pass stays idempotent.
func enrichTitle(uc usecase.UseCase) string {
	title := strings.TrimSpace(uc.Title)
	if len(strings.Fields(title)) >= minTitleWords {
		return uc.Title
	}
	actor := defaultActor
	if len(uc.Stakeholders) > 0 {
		if s := strings.TrimSpace(uc.Stakeholders[0]); s != "" && !strings.EqualFold(s, systemStakeholder) {
			actor = s
		}
	}
	if title == "" {
		return actor
	}
	first := strings.Fields(title)[0]
	if strings.EqualFold(first, actor) {
		return uc.Title
	}
	return actor + " " + title
}

// Actor picks the primary actor: the first non-system stakeholder, else the
// title's first word when it names a known actor, else "User".
func Actor(uc usecase.UseCase) string {
	for _, s := range usecase.Specified(usecase.FieldStakeholders, uc.Stakeholders) {
		s = strings.TrimSpace(s)
		if s != "" && !strings.EqualFold(s, systemStakeholder) {
			return s
		}
	}
	if words := strings.Fields(uc.Title); len(words) > 0 {
		for _, a := range usecase.Actors {
			if strings.EqualFold(words[0], a) {
				return usecase.Capitalize(strings.ToLower(words[0]))
			}
		}
	}
	return defaultActor
}

// TitleAction returns the first action verb found in the title.
func TitleAction(title string) string {
	for _, w := range strings.Fields(strings.ToLower(title)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if usecase.IsActionVerb(w) {
			return w
		}
		for _, suffix := range []string{"ing", "ed", "es", "s"} {
			if stem, ok := strings.CutSuffix(w, suffix); ok && usecase.IsActionVerb(stem) {
				return stem
			}
		}
	}
	return defaultAction
}

func enrichPreconditions(existing []string) []string {
	if len(existing) >= minPreconditions {
		return existing
	}
	return appendMissing(existing, defaultPreconditions, addedPreconditions)
}

func enrichMainFlow(existing []string, title, actor string) []string {
	if len(existing) >= minMainFlow {
		return existing
	}
	action := TitleAction(title)
	flow := []string{
		actor + " navigates to the relevant section",
		actor + " initiates the " + action + " operation",
		"System validates the request and " + strings.ToLower(actor) + " permissions",
		"System processes the " + action + " request",
		"System updates relevant data and records the action",
		"System confirms successful completion",
		actor + " receives a confirmation message",
	}
	if len(existing) == 0 {
		return append([]string(nil), flow[:emptyMainFlowSteps]...)
	}

	out := existing
	for _, step := range flow {
		if len(out) >= targetMainFlow {
			break
		}
		if !hasStepPrefix(out, step) {
			out = append(out, step)
		}
	}
	return out
}

func hasStepPrefix(steps []string, step string) bool {
	p := prefix(step)
	for _, s := range steps {
		if prefix(s) == p {
			return true
		}
	}
	return false
}

func prefix(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) > stepPrefixLen {
		return s[:stepPrefixLen]
	}
	return s
}

func enrichStakeholders(existing []string, title, actor string) []string {
	lowered := strings.ToLower(title)
	out := appendMissing(existing, []string{actor, systemStakeholder}, -1)
	for _, ks := range keywordStakeholders {
		for _, kw := range ks.keywords {
			if strings.Contains(lowered, kw) {
				out = appendMissing(out, ks.names, -1)
				break
			}
		}
	}
	if len(out) < targetStakeholders {
		out = appendMissing(out, []string{databaseStakeholder}, -1)
	}
	return out
}

// appendMissing appends candidates not already present (case-insensitive),
// at most limit of them; a negative limit means no limit.
func appendMissing(existing, candidates []string, limit int) []string {
	out := existing
	added := 0
	for _, c := range candidates {
		if limit >= 0 && added >= limit {
			break
		}
		if usecase.ContainsFold(out, c) {
			continue
		}
		out = append(out, c)
		added++
	}
	return out
}

// appendUntil appends mined values, then generic ones while fewer than
// target values exist.
func appendUntil(existing, mined, generic []string, target int) []string {
	out := appendMissing(existing, mined, -1)
	for _, g := range generic {
		if len(out) >= target {
			break
		}
		out = appendMissing(out, []string{g}, -1)
	}
	return out
}

func genericSubFlows(actor string) []string {
	return []string{
		actor + " can view additional details and information",
		actor + " can customize settings and preferences",
		actor + " can save work and return later",
	}
}

func genericAlternateFlows(actor string) []string {
	return []string{
		"If validation fails: System displays a specific error message and prompts " + actor + " to correct the input",
		"If system timeout: System retries the operation automatically and notifies " + actor,
		"If " + actor + " lacks required permissions: System denies access and logs the attempt",
		"If network error: System queues the request and retries when the connection is restored",
	}
}
