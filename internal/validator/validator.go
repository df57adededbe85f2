// Package validator scores extracted use cases. Validation is advisory: a
// use case with issues is still stored, its report only guides refinement.
package validator

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/reqengine/internal/usecase"
)

// Issues reported by Validate.
const (
	IssueTitleShort       = "Title too short - should follow 'Actor Action Object' pattern"
	IssueTitleVerb        = "Title should contain an action verb"
	IssueNoPreconditions  = "Use case should have at least one precondition"
	IssueNoMainFlow       = "Main flow is required"
	IssueShortMainFlow    = "Main flow should have at least 2 steps"
	IssueNoSubFlows       = "Consider adding optional/alternative sub-flows"
	IssueNoAlternateFlows = "Consider adding error handling and alternate paths"
	IssueNoOutcomes       = "Use case should define expected outcomes"
	IssueNoStakeholders   = "Use case should identify stakeholders"
	IssueFewStakeholders  = "Consider identifying more stakeholders (actors, systems)"
	IssueNoSystemActor    = "Consider adding 'System' as a stakeholder"
)

const (
	lowQualityThreshold    = 60
	securityBase           = 60
	securityPerCategory    = 5
	maxScore               = 100
	completenessPerStep    = 10
	unvalidatedTestability = 0.8
)

var suggestionFor = map[string]string{
	IssueTitleShort:       "Rewrite title in format: 'Actor ActionVerb Object' (e.g., 'Customer searches for books')",
	IssueTitleVerb:        "Rewrite title in format: 'Actor ActionVerb Object' (e.g., 'Customer searches for books')",
	IssueNoPreconditions:  "Add preconditions like: user authentication state, system availability, data prerequisites",
	IssueNoMainFlow:       "Break down the main flow into more detailed steps, each describing a specific action",
	IssueShortMainFlow:    "Break down the main flow into more detailed steps, each describing a specific action",
	IssueNoSubFlows:       "Add optional features, filters, or sorting capabilities as sub-flows",
	IssueNoAlternateFlows: "Add error handling: what happens on validation failure, timeout, or system error?",
	IssueNoOutcomes:       "Define clear success criteria and what the actor achieves",
	IssueNoStakeholders:   "Identify all involved parties: primary actor, secondary actors, external systems",
	IssueFewStakeholders:  "Identify all involved parties: primary actor, secondary actors, external systems",
	IssueNoSystemActor:    "Identify all involved parties: primary actor, secondary actors, external systems",
}

// Status labels a stored use case in extraction summaries.
type Status string

const (
	StatusValid        Status = "valid"
	StatusWithWarnings Status = "valid_with_warnings"
)

// Details breaks the combined score down.
type Details struct {
	Completeness  int     `json:"completeness"`
	Clarity       int     `json:"clarity"`
	Testability   float64 `json:"testability"`
	SecurityScore int     `json:"security_score"`
}

// Report is the full validation result for one use case.
type Report struct {
	Title           string   `json:"title,omitempty"`
	ValidationScore float64  `json:"validation_score"`
	IsValid         bool     `json:"is_valid"`
	Status          Status   `json:"status"`
	Issues          []string `json:"issues"`
	Suggestions     []string `json:"suggestions"`
	Details         Details  `json:"details"`
}

// present returns the values of a field that count as specified. A single
// "User" stakeholder is a real actor, not a placeholder.
func present(uc usecase.UseCase, field string) []string {
	values := uc.List(field)
	if field == usecase.FieldStakeholders {
		return values
	}
	return usecase.Specified(field, values)
}

// Validate checks the structure of uc and lists every issue found.
func Validate(uc usecase.UseCase) (bool, []string) {
	issues := []string{}

	title := strings.TrimSpace(uc.Title)
	if len(strings.Fields(title)) < 3 {
		issues = append(issues, IssueTitleShort)
	}
	if !usecase.ContainsVerb(strings.ToLower(title)) {
		issues = append(issues, IssueTitleVerb)
	}

	if len(present(uc, usecase.FieldPreconditions)) == 0 {
		issues = append(issues, IssueNoPreconditions)
	}

	switch n := len(present(uc, usecase.FieldMainFlow)); {
	case n == 0:
		issues = append(issues, IssueNoMainFlow)
	case n < 2:
		issues = append(issues, IssueShortMainFlow)
	}

	if len(present(uc, usecase.FieldSubFlows)) == 0 {
		issues = append(issues, IssueNoSubFlows)
	}
	if len(present(uc, usecase.FieldAlternateFlows)) == 0 {
		issues = append(issues, IssueNoAlternateFlows)
	}
	if len(present(uc, usecase.FieldOutcomes)) == 0 {
		issues = append(issues, IssueNoOutcomes)
	}

	stakeholders := present(uc, usecase.FieldStakeholders)
	switch {
	case len(stakeholders) == 0:
		issues = append(issues, IssueNoStakeholders)
	case len(stakeholders) < 2:
		issues = append(issues, IssueFewStakeholders)
	}
	hasSystem := false
	for _, s := range stakeholders {
		if strings.Contains(strings.ToLower(s), "system") {
			hasSystem = true
			break
		}
	}
	if !hasSystem {
		issues = append(issues, IssueNoSystemActor)
	}

	return len(issues) == 0, issues
}

// QualityScore is a 0-100 additive score: title 10, preconditions 15,
// main flow 25, sub flows 15, alternate flows 15, outcomes 10 and
// stakeholders 10.
func QualityScore(uc usecase.UseCase) int {
	score := 0

	words := strings.Fields(uc.Title)
	if len(words) >= 3 {
		score += 5
		for _, w := range words {
			if usecase.IsActionVerb(strings.Trim(w, ".,;:!?'\"()")) {
				score += 5
				break
			}
		}
	}

	score += min(len(present(uc, usecase.FieldPreconditions))*5, 15)

	switch n := len(present(uc, usecase.FieldMainFlow)); {
	case n >= 5:
		score += 25
	case n >= 3:
		score += 20
	case n >= 2:
		score += 15
	case n >= 1:
		score += 10
	}

	score += min(len(present(uc, usecase.FieldSubFlows))*5, 15)
	score += min(len(present(uc, usecase.FieldAlternateFlows))*5, 15)
	score += min(len(present(uc, usecase.FieldOutcomes))*5, 10)
	score += min(len(present(uc, usecase.FieldStakeholders))*3, 10)

	return min(score, maxScore)
}

// SecurityScore starts at 60 and adds 5 for every security keyword category
// mentioned anywhere in uc, capped at 100.
func SecurityScore(uc usecase.UseCase) int {
	text := uc.SearchText()
	score := securityBase
	for _, stems := range usecase.SecurityCategories {
		for _, stem := range stems {
			if strings.Contains(text, stem) {
				score += securityPerCategory
				break
			}
		}
	}
	return min(score, maxScore)
}

// Suggestions turns the issues in uc into actionable advice. Each suggestion
// appears once, in issue order.
func Suggestions(uc usecase.UseCase) []string {
	_, issues := Validate(uc)
	out := []string{}
	seen := make(map[string]struct{})
	for _, issue := range issues {
		s, ok := suggestionFor[issue]
		if !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if q := QualityScore(uc); q < lowQualityThreshold {
		out = append(out, fmt.Sprintf("Quality score is %d/100. Consider enriching all sections for better completeness.", q))
	}
	return out
}

// Analyze builds the combined report for uc. The validation score is the
// mean of quality, security and completeness.
func Analyze(uc usecase.UseCase) Report {
	valid, issues := Validate(uc)
	quality := QualityScore(uc)
	security := SecurityScore(uc)
	completeness := min(len(present(uc, usecase.FieldMainFlow))*completenessPerStep, maxScore)

	testability := float64(quality)
	if !valid {
		testability *= unvalidatedTestability
	}

	status := StatusValid
	if !valid {
		status = StatusWithWarnings
	}

	return Report{
		Title:           uc.Title,
		ValidationScore: float64(quality+security+completeness) / 3,
		IsValid:         valid,
		Status:          status,
		Issues:          issues,
		Suggestions:     Suggestions(uc),
		Details: Details{
			Completeness:  completeness,
			Clarity:       quality,
			Testability:   testability,
			SecurityScore: security,
		},
	}
}
