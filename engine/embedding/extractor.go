// Package embedding converts raw image bytes into fixed-length feature
// vectors. Extractors are safe for concurrent use; any model state they hold
// is loaded once and treated as read-only.
package embedding

import (
	"context"
	"fmt"
	"math"
)

// Extractor turns an image into an embedding vector. Implementations are
// deterministic: the same bytes always produce the same vector.
type Extractor interface {
	// Extract fails with domain.ErrUnreadableImage when the bytes cannot be
	// decoded as an image.
	Extract(ctx context.Context, image []byte) ([]float32, error)

	// Model identifies the extractor version. Vectors produced by different
	// models are not comparable.
	Model() string

	// Dimension returns the length of every vector this extractor produces.
	Dimension() int
}

// L2Normalize scales v to unit length in place and returns it. Zero vectors
// are returned unchanged.
func L2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// checkDimension verifies a vector returned by a remote model.
func checkDimension(v []float32, want int) error {
	if want > 0 && len(v) != want {
		return fmt.Errorf("embedding: expected %d dimensions, got %d", want, len(v))
	}
	if len(v) == 0 {
		return fmt.Errorf("embedding: model returned empty vector")
	}
	for i, x := range v {
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("embedding: non-finite value at index %d", i)
		}
	}
	return nil
}
