// Package prompt assembles LLM requests for extraction, refinement, query
// answering and session housekeeping.
//
// Builders return a dialect-neutral Prompt. A Dialect renders it for a
// single-string completion endpoint; chat endpoints use Messages instead.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/reqengine/internal/usecase"
)

// Kind identifies the request a Prompt carries.
type Kind string

const (
	KindExtract        Kind = "extract"
	KindBatch          Kind = "batch"
	KindRefine         Kind = "refine"
	KindQuery          Kind = "query"
	KindSessionSummary Kind = "session_summary"
	KindSessionTitle   Kind = "session_title"
)

// Prompt is an instruction/content pair. Prime is text the assistant turn
// is pre-filled with; extraction prompts open the JSON array so the model
// continues it.
type Prompt struct {
	Kind   Kind
	System string
	User   string
	Prime  string
}

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// Messages renders p for chat APIs. The prime is not sent; chat endpoints
// cannot continue a partial assistant turn reliably.
func Messages(p Prompt) []Message {
	var out []Message
	if p.System != "" {
		out = append(out, Message{Role: RoleSystem, Content: p.System})
	}
	return append(out, Message{Role: RoleUser, Content: p.User})
}

// Refinement categories.
const (
	RefineMainFlows      = "more_main_flows"
	RefineSubFlows       = "more_sub_flows"
	RefineAlternateFlows = "more_alternate_flows"
	RefinePreconditions  = "more_preconditions"
	RefineStakeholders   = "more_stakeholders"
)

var refineInstructions = map[string]string{
	RefineMainFlows:      "Add more main flows (additional primary flows or steps) to this use case. Expand the main flow with more detailed or additional steps.",
	RefineSubFlows:       "Add more sub flows to this use case. Include additional branching scenarios, related flows, or secondary paths.",
	RefineAlternateFlows: "Add more alternate flows to this use case. Include alternative paths, edge cases, error scenarios, and exception handling flows.",
	RefinePreconditions:  "Add more preconditions to this use case. Include additional requirements, system states, or conditions that must be met before the use case can execute.",
	RefineStakeholders:   "Add more stakeholders to this use case. Identify additional actors, users, systems, or entities involved in this use case.",
}

// DefaultRefineInstruction applies to unknown refinement categories.
const DefaultRefineInstruction = "Improve the overall quality and completeness of this use case."

// RefineInstruction returns the instruction text for a refinement category.
func RefineInstruction(kind string) string {
	if s, ok := refineInstructions[kind]; ok {
		return s
	}
	return DefaultRefineInstruction
}

// RefineKinds lists the known refinement categories.
func RefineKinds() []string {
	return []string{RefineMainFlows, RefineSubFlows, RefineAlternateFlows, RefinePreconditions, RefineStakeholders}
}

// criticalRules are shared by the single-stage and batch prompts.
const criticalRules = `CRITICAL RULES:
1. Each action mentioned should be a SEPARATE use case
2. DO NOT create duplicate use cases with the same title
3. Each use case must be unique and distinct
4. Split compound actions: "logs in and adds" → 2 separate use cases`

const extractSystem = "You are a requirements analyst. Extract use cases from text and return them as JSON.\n\n" + criticalRules

const extractExamples = `[
  {
    "title": "User logs in to system",
    "preconditions": ["User has valid credentials"],
    "main_flow": ["User opens app", "User enters credentials", "System validates", "User is authenticated"],
    "sub_flows": ["User can reset password", "User can remember device"],
    "alternate_flows": ["If invalid: System shows error", "If locked: System requires unlock"],
    "outcomes": ["User is logged in successfully"],
    "stakeholders": ["User", "Authentication System"]
  },
  {
    "title": "User adds items to shopping cart",
    "preconditions": ["User is logged in", "Products are available"],
    "main_flow": ["User browses products", "User selects product", "User clicks add to cart", "System adds item", "Cart is updated"],
    "sub_flows": ["User can adjust quantity", "User can view cart"],
    "alternate_flows": ["If out of stock: System notifies user", "If cart full: System prompts checkout"],
    "outcomes": ["Item added to cart successfully"],
    "stakeholders": ["User", "Shopping Cart System", "Inventory System"]
  }
]`

const batchSchema = `[
  {
    "title": "Actor performs action on object",
    "preconditions": ["Precondition 1", "Precondition 2"],
    "main_flow": ["Step 1", "Step 2", "Step 3", "Step 4"],
    "sub_flows": ["Optional feature 1", "Optional feature 2"],
    "alternate_flows": ["Error case 1", "Error case 2"],
    "outcomes": ["Success result 1", "Success result 2"],
    "stakeholders": ["Actor", "System"]
  }
]`

// Extract builds the single-stage prompt asking for about n use cases.
func Extract(text, memoryContext string, n int) Prompt {
	var b strings.Builder
	writeContext(&b, memoryContext, text)
	fmt.Fprintf(&b, "Extract approximately %d UNIQUE, DISTINCT use cases from the requirements above.\n\n", n)
	b.WriteString("IMPORTANT:\n")
	b.WriteString("- \"User logs in and adds to cart\" → Create 2 separate use cases:\n")
	b.WriteString("  1. \"User logs in to system\"\n")
	b.WriteString("  2. \"User adds items to cart\"\n")
	b.WriteString("- DO NOT create the same use case twice\n")
	b.WriteString("- Each use case must have a different title\n\n")
	b.WriteString("Return a JSON array where EACH use case has UNIQUE title and purpose:\n")
	b.WriteString(extractExamples)

	return Prompt{Kind: KindExtract, System: extractSystem, User: b.String(), Prime: "["}
}

// Batch builds a prompt asking for exactly k use cases.
func Batch(text, memoryContext string, k int) Prompt {
	var b strings.Builder
	writeContext(&b, memoryContext, text)
	b.WriteString(criticalRules)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Extract exactly %d distinct use cases. Return ONLY a JSON array:\n", k)
	b.WriteString(batchSchema)

	return Prompt{
		Kind:   KindBatch,
		System: fmt.Sprintf("You are a requirements analyst. Extract exactly %d use cases from the requirements.\n\n%s", k, criticalRules),
		User:   b.String(),
		Prime:  "[",
	}
}

func writeContext(b *strings.Builder, memoryContext, text string) {
	if mc := strings.TrimSpace(memoryContext); mc != "" {
		b.WriteString(mc)
		b.WriteString("\n\n")
	}
	b.WriteString("Requirements:\n")
	b.WriteString(text)
	b.WriteString("\n\n")
}

// Refine builds a prompt expanding one field category of uc.
func Refine(uc usecase.UseCase, kind string) (Prompt, error) {
	payload, err := json.MarshalIndent(uc, "", "  ")
	if err != nil {
		return Prompt{}, fmt.Errorf("encoding use case: %w", err)
	}
	user := fmt.Sprintf("Current use case:\n%s\n\nTask: %s\n\nReturn the refined use case in the same JSON format, with improvements applied.",
		payload, RefineInstruction(kind))

	return Prompt{
		Kind:   KindRefine,
		System: "You are a requirements analyst refining a use case.",
		User:   user,
	}, nil
}

// Query builds a question-answering prompt over rendered use cases.
func Query(useCases, question string) Prompt {
	return Prompt{
		Kind: KindQuery,
		System: "You are a requirements analyst assistant. Answer questions about use cases clearly and concisely.\n" +
			"IMPORTANT: Do NOT mention use case IDs, numbers, or database identifiers in your responses. Only refer to use cases by their titles.",
		User: fmt.Sprintf("Use cases:\n%s\n\nQuestion: %s\n\nProvide a clear, helpful answer based on the use cases above. Do not include any use case numbers or IDs in your response.",
			useCases, question),
	}
}

// SessionSummary asks for a short summary of a conversation transcript.
func SessionSummary(conversation string) Prompt {
	return Prompt{
		Kind: KindSessionSummary,
		User: fmt.Sprintf("Summarize the following conversation about software requirements in 2-3 sentences:\n\n%s\n\nSummary:", conversation),
	}
}

// SessionTitle asks for a 4-7 word session title.
func SessionTitle(text string) Prompt {
	return Prompt{
		Kind:   KindSessionTitle,
		System: "You are a requirements analyst. Create a concise session title (4-7 words) that summarizes this requirement text.",
		User:   fmt.Sprintf("Requirements text:\n%s\n\nGenerate a short, descriptive title (4-7 words):", text),
	}
}
