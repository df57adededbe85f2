package memory

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want string
	}{
		{name: "empty", ctx: Context{}, want: ""},
		{
			name: "project and domain",
			ctx:  Context{ProjectContext: "Online bookstore", Domain: "retail"},
			want: "PROJECT CONTEXT:\nOnline bookstore\n\nDOMAIN: retail\n",
		},
		{
			name: "history and titles",
			ctx: Context{
				History: []Turn{
					{Role: RoleUser, Content: "Users log in"},
					{Role: RoleAssistant, Content: "Extracted 1 use case"},
				},
				PreviousTitles: []string{"User logs in"},
			},
			want: "RECENT CONVERSATION:\nUSER: Users log in\nASSISTANT: Extracted 1 use case\n\n" +
				"PREVIOUSLY GENERATED USE CASES IN THIS SESSION:\n- User logs in\n",
		},
		{
			name: "whitespace only sections are omitted",
			ctx:  Context{ProjectContext: "  ", Domain: "\n"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Build(tt.ctx))
		})
	}
}

func TestBuild_Limits(t *testing.T) {
	var history []Turn
	for i := 0; i < 8; i++ {
		history = append(history, Turn{Role: RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}
	history = append(history, Turn{Role: RoleUser, Content: strings.Repeat("x", 300)})

	out := Build(Context{
		History:        history,
		PreviousTitles: []string{"A one", "B two", "C three", "D four", "E five"},
	})

	assert.NotContains(t, out, "turn 3")
	assert.Contains(t, out, "turn 4")
	assert.Contains(t, out, "USER: "+strings.Repeat("x", MaxTurnChars)+"\n")
	assert.NotContains(t, out, strings.Repeat("x", MaxTurnChars+1))
	assert.NotContains(t, out, "B two")
	assert.Contains(t, out, "- C three\n- D four\n- E five")
}

func TestWithTitles(t *testing.T) {
	base := Context{PreviousTitles: []string{"A"}}
	next := base.WithTitles("B", "C")
	assert.Equal(t, []string{"A", "B", "C"}, next.PreviousTitles)
	assert.Equal(t, []string{"A"}, base.PreviousTitles)
}

func TestTranscriptAndFallback(t *testing.T) {
	history := []Turn{
		{Role: RoleUser, Content: "Customers browse books"},
		{Role: RoleAssistant, Content: "ok"},
		{Role: RoleUser, Content: "Admins manage stock"},
	}
	assert.Equal(t, "Customers browse books\nAdmins manage stock", Transcript(history))
	assert.Equal(t, "Conversation includes 2 user inputs discussing requirements and use cases.", FallbackSummary(history))
	assert.Equal(t, "No conversation history yet.", FallbackSummary(nil))
}

func TestKeyConcepts(t *testing.T) {
	text := "Users search books. Users buy books, users review books and the shop ships."
	assert.Equal(t, []string{"users", "books", "search"}, KeyConcepts(text, 3))
	assert.Equal(t, []string{}, KeyConcepts("a an the", 5))
	assert.Equal(t, []string{}, KeyConcepts(text, 0))
}
