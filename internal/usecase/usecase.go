package usecase

import "strings"

// Field names as they appear in JSON payloads.
const (
	FieldTitle          = "title"
	FieldPreconditions  = "preconditions"
	FieldMainFlow       = "main_flow"
	FieldSubFlows       = "sub_flows"
	FieldAlternateFlows = "alternate_flows"
	FieldOutcomes       = "outcomes"
	FieldStakeholders   = "stakeholders"
)

// ListFields are the six list-typed fields in canonical order.
var ListFields = []string{
	FieldPreconditions,
	FieldMainFlow,
	FieldSubFlows,
	FieldAlternateFlows,
	FieldOutcomes,
	FieldStakeholders,
}

// Placeholder phrases stored when a field is unspecified.
const (
	DefaultTitle         = "Untitled"
	DefaultPrecondition  = "User is authenticated"
	DefaultMainFlow      = "Action performed"
	DefaultSubFlow       = "Optional features available"
	DefaultAlternateFlow = "Error handling included"
	DefaultOutcome       = "Task completed successfully"
	DefaultStakeholder   = "User"
)

// Placeholders maps each list field to its placeholder phrase.
var Placeholders = map[string]string{
	FieldPreconditions:  DefaultPrecondition,
	FieldMainFlow:       DefaultMainFlow,
	FieldSubFlows:       DefaultSubFlow,
	FieldAlternateFlows: DefaultAlternateFlow,
	FieldOutcomes:       DefaultOutcome,
	FieldStakeholders:   DefaultStakeholder,
}

// UseCase is a structured requirement record.
type UseCase struct {
	Title          string   `json:"title" yaml:"title"`
	Preconditions  []string `json:"preconditions" yaml:"preconditions"`
	MainFlow       []string `json:"main_flow" yaml:"main_flow"` // ordered steps
	SubFlows       []string `json:"sub_flows" yaml:"sub_flows"`
	AlternateFlows []string `json:"alternate_flows" yaml:"alternate_flows"`
	Outcomes       []string `json:"outcomes" yaml:"outcomes"`
	Stakeholders   []string `json:"stakeholders" yaml:"stakeholders"`
}

// List returns the list stored under a JSON field name, or nil.
func (u *UseCase) List(field string) []string {
	switch field {
	case FieldPreconditions:
		return u.Preconditions
	case FieldMainFlow:
		return u.MainFlow
	case FieldSubFlows:
		return u.SubFlows
	case FieldAlternateFlows:
		return u.AlternateFlows
	case FieldOutcomes:
		return u.Outcomes
	case FieldStakeholders:
		return u.Stakeholders
	}
	return nil
}

// SetList replaces the list stored under a JSON field name.
// Unknown field names are ignored.
func (u *UseCase) SetList(field string, values []string) {
	switch field {
	case FieldPreconditions:
		u.Preconditions = values
	case FieldMainFlow:
		u.MainFlow = values
	case FieldSubFlows:
		u.SubFlows = values
	case FieldAlternateFlows:
		u.AlternateFlows = values
	case FieldOutcomes:
		u.Outcomes = values
	case FieldStakeholders:
		u.Stakeholders = values
	}
}

// FillPlaceholders replaces every empty field with its placeholder.
func (u *UseCase) FillPlaceholders() {
	if strings.TrimSpace(u.Title) == "" {
		u.Title = DefaultTitle
	}
	for _, f := range ListFields {
		if len(u.List(f)) == 0 {
			u.SetList(f, []string{Placeholders[f]})
		}
	}
}

// Clone returns a deep copy.
func (u UseCase) Clone() UseCase {
	c := UseCase{Title: u.Title}
	for _, f := range ListFields {
		if src := u.List(f); src != nil {
			c.SetList(f, append([]string(nil), src...))
		}
	}
	return c
}

// IsPlaceholder reports whether values holds nothing but the placeholder
// for field.
func IsPlaceholder(field string, values []string) bool {
	p, ok := Placeholders[field]
	return ok && len(values) == 1 && strings.EqualFold(strings.TrimSpace(values[0]), p)
}

// Specified returns values unless they are only the field placeholder.
func Specified(field string, values []string) []string {
	if IsPlaceholder(field, values) {
		return nil
	}
	return values
}

// EmbeddingText is the text embedded for duplicate detection.
func (u *UseCase) EmbeddingText() string {
	return u.Title + " " + strings.Join(u.MainFlow, " ")
}

// SearchText is a lowercase concatenation of every field.
func (u *UseCase) SearchText() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(u.Title))
	for _, f := range ListFields {
		for _, v := range u.List(f) {
			b.WriteByte(' ')
			b.WriteString(strings.ToLower(v))
		}
	}
	return b.String()
}

// ContainsFold reports whether values contains s, ignoring case and
// surrounding whitespace.
func ContainsFold(values []string, s string) bool {
	s = strings.TrimSpace(s)
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}
