// Package prompt assembles the system prompt sent to the language model.
package prompt

import (
	"fmt"
	"strings"

	"party-avatar/internal/models"
)

// NoMaterialNotice replaces the party material section when retrieval found
// nothing.
const NoMaterialNotice = "NO RELEVANT MATERIAL FOUND: the party documents contain nothing about this question. " +
	"Say clearly that you do not have information about the party's position on it, " +
	"and do not invent positions, numbers or promises."

const groundingRules = `Use the party material below as the only source for the party's positions.
If the material does not cover the question, say so plainly instead of making up an answer.
Do not present your own opinions or general knowledge as party policy.`

// Builder renders system prompts. The instruction block that does not depend
// on the question is rendered once.
type Builder struct {
	instructions string
}

func NewBuilder(partyName, language string) *Builder {
	if partyName == "" {
		partyName = "the party"
	}
	if language == "" {
		language = "norsk bokmål"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a digital representative of %s.\n", partyName)
	fmt.Fprintf(&b, "Always answer in %s unless the user explicitly asks for another language.\n", language)
	b.WriteString("Keep answers short and clear, as if spoken aloud.\n")
	b.WriteString(groundingRules)
	b.WriteString("\n\n")
	b.WriteString(FormatInstructions())

	return &Builder{instructions: b.String()}
}

// System returns the full system prompt for one question's context.
func (b *Builder) System(context string) string {
	var sb strings.Builder
	sb.WriteString(b.instructions)
	sb.WriteString("\n\nParty material:\n")
	if context = strings.TrimSpace(context); context == "" {
		sb.WriteString(NoMaterialNotice)
	} else {
		sb.WriteString(context)
	}
	sb.WriteString("\n")
	return sb.String()
}

// FormatInstructions describes the JSON shape the model must return.
func FormatInstructions() string {
	expressions := make([]string, len(models.FacialExpressions))
	for i, e := range models.FacialExpressions {
		expressions[i] = string(e)
	}
	animations := make([]string, len(models.Animations))
	for i, a := range models.Animations {
		animations[i] = string(a)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Return ONLY valid JSON of the form {\"messages\":[{\"text\":\"...\",\"facialExpression\":\"%s\",\"animation\":\"%s\"}]}.\n",
		strings.Join(expressions, "|"), strings.Join(animations, "|"))
	b.WriteString("Every message must have the fields text, facialExpression and animation.\n")
	fmt.Fprintf(&b, "At most %d messages.\n", models.MaxMessages)
	fmt.Fprintf(&b, "Valid facialExpression: %s.\n", strings.Join(expressions, ", "))
	fmt.Fprintf(&b, "Valid animation: %s.", strings.Join(animations, ", "))
	return b.String()
}
