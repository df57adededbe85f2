// Package memory renders the session context that extraction prompts carry
// so the model avoids re-deriving use cases it already produced.
package memory

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// MaxTurns is how many recent conversation turns are rendered.
	MaxTurns = 5
	// MaxTurnChars truncates each rendered turn.
	MaxTurnChars = 200
	// MaxTitles is how many previous use case titles are rendered.
	MaxTitles = 3
	// MaxSummaryMessages bounds the user messages sent for summarization.
	MaxSummaryMessages = 10
)

// Roles of conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one conversation message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context is everything known about a session before an extraction.
type Context struct {
	ProjectContext string
	Domain         string
	// History is chronological.
	History []Turn
	// PreviousTitles are the titles of stored use cases, oldest first.
	PreviousTitles []string
}

// Build renders c. Empty sections are omitted; an empty Context renders "".
func Build(c Context) string {
	var parts []string

	if p := strings.TrimSpace(c.ProjectContext); p != "" {
		parts = append(parts, "PROJECT CONTEXT:\n"+p+"\n")
	}
	if d := strings.TrimSpace(c.Domain); d != "" {
		parts = append(parts, "DOMAIN: "+d+"\n")
	}

	if len(c.History) > 0 {
		parts = append(parts, "RECENT CONVERSATION:")
		for _, t := range tail(c.History, MaxTurns) {
			parts = append(parts, fmt.Sprintf("%s: %s", strings.ToUpper(t.Role), truncate(t.Content, MaxTurnChars)))
		}
		parts = append(parts, "")
	}

	if len(c.PreviousTitles) > 0 {
		parts = append(parts, "PREVIOUSLY GENERATED USE CASES IN THIS SESSION:")
		for _, title := range tail(c.PreviousTitles, MaxTitles) {
			parts = append(parts, "- "+title)
		}
		parts = append(parts, "")
	}

	return strings.Join(parts, "\n")
}

// WithTitles returns a copy of c whose previous titles also include titles.
func (c Context) WithTitles(titles ...string) Context {
	out := c
	out.PreviousTitles = append(append([]string(nil), c.PreviousTitles...), titles...)
	return out
}

func tail[T any](s []T, n int) []T {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Transcript joins the last user messages of history for summarization.
func Transcript(history []Turn) string {
	var msgs []string
	for _, t := range history {
		if t.Role == RoleUser {
			msgs = append(msgs, t.Content)
		}
	}
	return strings.Join(tail(msgs, MaxSummaryMessages), "\n")
}

// FallbackSummary describes history without a model.
func FallbackSummary(history []Turn) string {
	if len(history) == 0 {
		return "No conversation history yet."
	}
	n := 0
	for _, t := range history {
		if t.Role == RoleUser {
			n++
		}
	}
	return fmt.Sprintf("Conversation includes %d user inputs discussing requirements and use cases.", n)
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"from": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"been": {}, "being": {}, "that": {}, "this": {}, "should": {}, "will": {},
}

// KeyConcepts returns the n most frequent words of text longer than three
// characters, excluding stopwords. Ties keep first-seen order.
func KeyConcepts(text string, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?'\"()[]{}")
		if len(w) <= 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if n <= 0 || len(order) == 0 {
		return []string{}
	}
	return order[:min(len(order), n)]
}
