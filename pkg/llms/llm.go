// Package llms provides the narrow language model seam consumed by the
// intent router and the agentic RAG controller. The core never hosts a
// model itself.
package llms

import (
	"context"
	"fmt"
)

// Provider generates text completions.
type Provider interface {
	// Generate produces a completion for the prompt under the system
	// instruction. Blocking; honors ctx cancellation and the provider
	// timeout.
	Generate(ctx context.Context, system, prompt string) (string, error)

	// ModelName returns the backing model identifier.
	ModelName() string

	Close() error
}

// LLMError wraps a provider failure with call context.
type LLMError struct {
	Provider  string
	Operation string
	Message   string
	Err       error
}

func (e *LLMError) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.Provider, e.Operation, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *LLMError) Unwrap() error {
	return e.Err
}
