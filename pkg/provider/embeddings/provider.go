// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// An embeddings provider maps text strings to dense float32 vectors. Dinevox
// uses these vectors for the menu description index: item descriptions are
// embedded at startup and customer queries are matched against them when
// lexical fuzzy matching fails.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (returned by Dimensions). Vectors from different providers
// or models must never be mixed in the same similarity computation.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The text
	// is passed to the model verbatim; any model-specific prefix formatting
	// is the caller's responsibility.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for a slice of texts in a single provider
	// call. The result has the same length and order as texts. On error the
	// entire result is nil — partial results are not returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for logging
	// and for verifying that an existing index was built with the same model.
	ModelID() string
}
