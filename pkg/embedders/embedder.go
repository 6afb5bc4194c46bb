// Package embedders provides dense-vector encoders behind a narrow provider
// interface, with a process-wide rate budget on outbound calls.
package embedders

import (
	"context"
	"fmt"
)

// Provider encodes one or many texts into fixed-dimension dense vectors.
//
// Providers are side-effectful (network) and may fail with *EmbeddingError.
// Equivalent inputs may produce equivalent vectors but callers must not
// assume byte-level idempotence.
type Provider interface {
	// Embed encodes a single query text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch encodes many texts in one round trip where the backend
	// allows, preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension shared by all outputs.
	Dimension() int

	// ModelName returns the backing model identifier.
	ModelName() string

	Close() error
}

// EmbeddingError wraps a provider failure with call context.
type EmbeddingError struct {
	Provider  string
	Operation string
	Message   string
	Err       error
}

func (e *EmbeddingError) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.Provider, e.Operation, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

func newEmbeddingError(provider, operation, message string, err error) *EmbeddingError {
	return &EmbeddingError{
		Provider:  provider,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
