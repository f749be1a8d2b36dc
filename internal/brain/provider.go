// Package brain talks to the language-model backends that answer same-event
// questions.
package brain

import "context"

// Provider is one language-model backend.
type Provider interface {
	// Name returns the backend name, e.g. "openai" or "ollama".
	Name() string

	// Available reports whether the backend has what it needs to be called.
	Available() bool

	// Generate sends one prompt and returns the completion.
	Generate(ctx context.Context, req Request) (Response, error)
}

// Request is one prompt.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

// Response is a completion.
type Response struct {
	Content     string
	Model       string
	RawResponse string // response body, kept for debug logging
	Truncated   bool   // output hit the token limit
}
