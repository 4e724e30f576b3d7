package llmservice

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"party-avatar/internal/models"
)

// ParsedOutput is the result of reading raw model output: either a
// StructuredResult or a PlainTextFallback.
type ParsedOutput interface {
	Messages() []models.Message
	isParsedOutput()
}

// StructuredResult is output that matched the {"messages": [...]} schema.
// Its messages are already clamped and normalized.
type StructuredResult struct {
	messages []models.Message
}

func (r StructuredResult) Messages() []models.Message { return r.messages }
func (StructuredResult) isParsedOutput()               {}

// PlainTextFallback is output that was not valid structured JSON; the whole
// text is spoken as a single message.
type PlainTextFallback struct {
	Text string
}

func (f PlainTextFallback) Messages() []models.Message {
	text := strings.TrimSpace(f.Text)
	if text == "" {
		text = models.ApologyText
	}
	return []models.Message{{
		Text:             text,
		FacialExpression: models.DefaultExpression,
		Animation:        models.DefaultAnimation,
	}}
}
func (PlainTextFallback) isParsedOutput() {}

var codeFenceRe = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*\n?(.*?)\\s*```\\s*$")

type rawOutput struct {
	Messages []map[string]any `json:"messages"`
}

// ParseOutput strictly decodes content into the message schema and falls back
// to plain text when that fails. It never fails.
func ParseOutput(content string) ParsedOutput {
	body := stripCodeFence(content)

	var raw rawOutput
	if err := json.Unmarshal([]byte(body), &raw); err != nil || len(raw.Messages) == 0 {
		return PlainTextFallback{Text: content}
	}

	n := min(len(raw.Messages), models.MaxMessages)
	messages := make([]models.Message, n)
	for i := 0; i < n; i++ {
		messages[i] = normalizeMessage(raw.Messages[i])
	}
	return StructuredResult{messages: messages}
}

func stripCodeFence(content string) string {
	if m := codeFenceRe.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return strings.TrimSpace(content)
}

func normalizeMessage(m map[string]any) models.Message {
	text := ""
	if v, ok := m["text"]; ok && v != nil {
		if s, ok := v.(string); ok {
			text = s
		} else {
			text = fmt.Sprint(v)
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = models.ApologyText
	}

	expression := models.FacialExpression(stringField(m, "facialExpression"))
	if !expression.Valid() {
		expression = models.DefaultExpression
	}
	animation := models.Animation(stringField(m, "animation"))
	if !animation.Valid() {
		animation = models.DefaultAnimation
	}

	return models.Message{Text: text, FacialExpression: expression, Animation: animation}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
