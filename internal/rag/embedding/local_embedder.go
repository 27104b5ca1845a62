package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
)

// LocalDimension is the vector size of the deterministic local embedder.
const LocalDimension = 384

// LocalEmbedder is a deterministic, dependency-free embedding stand-in. It
// hashes words and character trigrams into a fixed-dimension accumulator and
// L2-normalizes the result. It is not a semantic model; it exists so the
// retrieval pipeline works end to end without external services and is meant
// to be swapped for a real provider behind the same interface.
type LocalEmbedder struct {
	dimension int
}

// NewLocalEmbedder creates a local embedder. A non-positive dimension falls
// back to LocalDimension.
func NewLocalEmbedder(dimension int) *LocalEmbedder {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalEmbedder{dimension: dimension}
}

// Embed produces the vector for text. Identical text always produces an
// identical vector.
func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	text = strings.ToLower(strings.TrimSpace(truncate(text)))
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}

	acc := make([]float64, e.dimension)

	for _, word := range strings.Fields(text) {
		addFeature(acc, word, 1.0)

		// character trigrams give partial-word overlap a signal, so
		// related forms of a word land on shared components
		runes := []rune(word)
		for i := 0; i+3 <= len(runes); i++ {
			addFeature(acc, string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	if norm == 0 {
		return nil, errors.New("text produced no features")
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dimension)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

// addFeature hashes a feature into two accumulator positions with a
// hash-derived sign, which keeps distinct vocabularies from collapsing onto
// the same components.
func addFeature(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(len(acc)))
	sign := 1.0
	if sum&(1<<63) != 0 {
		sign = -1.0
	}
	acc[idx] += sign * weight

	idx2 := int((sum >> 17) % uint64(len(acc)))
	acc[idx2] += sign * weight * 0.5
}

// Dimension returns the vector size.
func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

// Model returns the model identifier.
func (e *LocalEmbedder) Model() string {
	return "local-hash-v1"
}

// Provider returns the provider name.
func (e *LocalEmbedder) Provider() string {
	return ProviderLocal
}
