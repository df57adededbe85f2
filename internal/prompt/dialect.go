package prompt

import (
	"fmt"
	"strings"
)

// Dialect renders a Prompt as a single completion string.
type Dialect interface {
	Name() string
	Render(p Prompt) string
}

// Llama3 is the Llama 3 instruct chat template.
type Llama3 struct{}

func (Llama3) Name() string { return "llama3" }

func (Llama3) Render(p Prompt) string {
	var b strings.Builder
	b.WriteString("<|begin_of_text|>")
	if p.System != "" {
		b.WriteString("<|start_header_id|>system<|end_header_id|>\n\n")
		b.WriteString(p.System)
		b.WriteString("<|eot_id|>")
	}
	b.WriteString("<|start_header_id|>user<|end_header_id|>\n\n")
	b.WriteString(p.User)
	b.WriteString("<|eot_id|><|start_header_id|>assistant<|end_header_id|>\n\n")
	b.WriteString(p.Prime)
	return b.String()
}

// Plain is an instruction/User/Assistant layout for base models without a
// chat template.
type Plain struct{}

func (Plain) Name() string { return "plain" }

func (Plain) Render(p Prompt) string {
	var b strings.Builder
	if p.System != "" {
		b.WriteString(p.System)
		b.WriteString("\n\n")
	}
	b.WriteString("User:\n")
	b.WriteString(p.User)
	b.WriteString("\n\nAssistant:\n")
	b.WriteString(p.Prime)
	return b.String()
}

// DialectByName resolves a configured dialect name. Empty selects Llama3.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "llama3":
		return Llama3{}, nil
	case "plain":
		return Plain{}, nil
	}
	return nil, fmt.Errorf("unknown prompt dialect %q", name)
}
