package llmservice

import "context"

// Request is one completion: a system prompt and the user's question.
type Request struct {
	System string
	User   string
}

// Completion is the raw model output and the model that produced it.
type Completion struct {
	Content string
	Model   string
}

// Provider completes a request against one LLM backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Completion, error)
}
