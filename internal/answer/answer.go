// Package answer defines the external answering collaborator: a
// language model that consumes curated context and returns free text.
// The retrieval core never interprets the answer; it only carries it
// back to the caller.
package answer

import (
	"context"
)

// Collaborator answers a question from assembled context.
type Collaborator interface {
	// Answer produces free text for the question given the context
	// window. The context is authoritative: the model is instructed
	// to answer only from it.
	Answer(ctx context.Context, question, contextWindow string) (string, error)

	// Model identifies the underlying model.
	Model() string

	// Available probes whether the collaborator can serve requests.
	Available(ctx context.Context) bool
}
