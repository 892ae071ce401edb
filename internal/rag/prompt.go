package rag

import (
	"strconv"
	"strings"
)

// DefaultPersona frames the model when no persona is configured.
const DefaultPersona = "Data Protection expert AI"

// PromptBuilder renders a question and its fragments into a grounding prompt.
// Build has no hidden state: equal inputs give equal prompts.
type PromptBuilder struct {
	Persona string
}

func (b PromptBuilder) Build(question string, fragments []Fragment) string {
	persona := b.Persona
	if persona == "" {
		persona = DefaultPersona
	}

	var sb strings.Builder
	sb.WriteString("You are a ")
	sb.WriteString(persona)
	sb.WriteString(". Use the following document context to answer the user's question:\n\n")

	sb.WriteString("CONTEXT:\n")
	for i, f := range fragments {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(f.Text)
	}

	sb.WriteString("\n\nQUESTION:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nANSWER:")
	return sb.String()
}
