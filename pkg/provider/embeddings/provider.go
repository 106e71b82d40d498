// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// An embeddings provider maps text to dense float32 vectors. Colloquy uses
// these for the semantic turn index that augments context assembly when a
// session's history no longer fits the prompt budget.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the dimensionality
// reported by Dimensions. Vectors from different instances must not be mixed
// in one similarity computation unless model and space match.
type Provider interface {
	// Embed computes embedding vectors for texts in a single backend call.
	// The returned slice has the same length as texts, element i corresponding
	// to texts[i]. On error the whole result is nil; there are no partials.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector this provider
	// produces, constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the backend model identifier, for logging and for
	// guarding against mixed-model indexes.
	ModelID() string
}
