// Package extractor abstracts the embedding-extraction capability used to
// vectorize images. Stores and query engines depend only on the Func type;
// the HTTP client talks to an external embedding server, and Fixed serves
// precomputed vectors for tests and offline imports.
package extractor

import (
	"context"
	"errors"
	"fmt"
)

// Func produces the embedding vector for one image, identified by its path
// or URL.
type Func func(ctx context.Context, source string) ([]float32, error)

// BatchFunc produces embeddings for several images in one round trip. The
// result is positional: embeddings[i] belongs to sources[i].
type BatchFunc func(ctx context.Context, sources []string) ([][]float32, error)

// Error reports a failed extraction for one source image. Any extraction
// failure aborts the operation that requested it; partial results are never
// committed.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extractor: %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fixed returns a Func serving embeddings from a static table. Sources
// absent from the table fail with an *Error.
func Fixed(table map[string][]float32) Func {
	return func(_ context.Context, source string) ([]float32, error) {
		vec, ok := table[source]
		if !ok {
			return nil, &Error{Source: source, Err: errors.New("no embedding for source")}
		}
		return vec, nil
	}
}
