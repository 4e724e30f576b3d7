package llmservice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ModelAccessError means the model cannot be used with the current account:
// it does not exist, access is denied, or the quota is exhausted. Another
// model may still work.
type ModelAccessError struct {
	Model string
	Err   error
}

func (e *ModelAccessError) Error() string {
	return fmt.Sprintf("model %s unavailable: %v", e.Model, e.Err)
}

func (e *ModelAccessError) Unwrap() error { return e.Err }

// ProviderError is any other failure of one provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProviderFailure records why one provider of the chain did not answer.
type ProviderFailure struct {
	Provider string
	Err      error
}

// AllProvidersFailedError is returned when no provider of the chain produced
// an answer.
type AllProvidersFailedError struct {
	Failures []ProviderFailure
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Failures) == 0 {
		return "no llm provider configured"
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s failed: %v", f.Provider, f.Err)
	}
	return strings.Join(parts, ". ")
}

func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

var modelAccessCodes = map[string]bool{
	"model_not_found":    true,
	"insufficient_quota": true,
}

var modelAccessPhrases = []string{
	"does not exist",
	"do not have access",
	"insufficient_quota",
	"model_not_found",
}

// isModelAccessError classifies err as recoverable by switching model.
func isModelAccessError(err error) bool {
	if err == nil {
		return false
	}
	var mae *ModelAccessError
	if errors.As(err, &mae) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code != nil && modelAccessCodes[fmt.Sprint(apiErr.Code)] {
			return true
		}
		if apiErr.Type == "insufficient_quota" {
			return true
		}
	}
	msg := err.Error()
	for _, p := range modelAccessPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
