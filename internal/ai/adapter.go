// Package ai produces fixed-dimension embeddings and short summaries
// over message text, for background enrichment, semantic-search query
// vectors, and on-demand summarization. A primary Gemini implementation
// can fail over to a local Ollama fallback on connection or quota
// errors.
package ai

import (
	"context"
	"errors"
)

// EmbeddingDims is the fixed embedding width the vector column and
// cosine-similarity search assume.
const EmbeddingDims = 768

// ErrUnavailable reports that no configured provider could serve the
// request. Callers wrap it as apperr.AiFailure.
var ErrUnavailable = errors.New("ai: no provider available")

// Adapter is the contract consumed by the enrichment worker, semantic
// search, and the on-demand summarize endpoint.
type Adapter interface {
	// Embed produces a fixed-dimension embedding for text. Implementations
	// must return a vector of exactly EmbeddingDims elements or an error.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Summarize produces a short natural-language summary of text.
	Summarize(ctx context.Context, text string) (string, error)
}
