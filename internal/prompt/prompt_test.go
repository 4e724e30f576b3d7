package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"party-avatar/internal/models"
)

func TestFormatInstructionsListsEnums(t *testing.T) {
	got := FormatInstructions()
	assert.Contains(t, strings.ToLower(got), "json")
	assert.Contains(t, got, `"messages"`)
	assert.Contains(t, got, "At most 3 messages")
	for _, e := range models.FacialExpressions {
		assert.Contains(t, got, string(e))
	}
	for _, a := range models.Animations {
		assert.Contains(t, got, string(a))
	}
}

func TestSystemWithContext(t *testing.T) {
	b := NewBuilder("Framtidspartiet", "nynorsk")
	got := b.System("  Vi vil bygge mer vindkraft.  ")

	assert.Contains(t, got, "Framtidspartiet")
	assert.Contains(t, got, "Always answer in nynorsk")
	assert.Contains(t, got, "only source")
	assert.Contains(t, got, "Party material:\nVi vil bygge mer vindkraft.\n")
	assert.NotContains(t, got, NoMaterialNotice)
}

func TestSystemWithoutContext(t *testing.T) {
	b := NewBuilder("", "")
	got := b.System(" \n ")

	assert.Contains(t, got, "the party")
	assert.Contains(t, got, "norsk bokmål")
	assert.Contains(t, got, NoMaterialNotice)
}

func TestSystemDoesNotCarryContextBetweenCalls(t *testing.T) {
	b := NewBuilder("Partiet", "norsk bokmål")
	first := b.System("Energi: mer vindkraft.")
	second := b.System("Skole: flere lærere.")

	assert.Contains(t, first, "vindkraft")
	assert.NotContains(t, second, "vindkraft")
	assert.Contains(t, second, "lærere")
}
