package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// MaxInputChars caps the text length fed to an embedder; longer inputs are
// truncated before embedding.
const MaxInputChars = 8000

// Embedder maps text to a fixed-dimension vector. Implementations must be
// deterministic: the same text always yields the same vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
	Provider() string
}

// BatchEmbedder is implemented by embedders that support a single call for
// multiple inputs.
type BatchEmbedder interface {
	Embedder
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// CosineSimilarity computes the normalized dot product of two vectors,
// in [-1, 1]. It errors when the dimensions differ.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, errors.New("vectors are empty")
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// ValidateVector checks that a vector has the expected dimension and carries
// no NaN or infinite components. Chunks failing this check are skipped during
// ingestion and excluded from semantic retrieval.
func ValidateVector(vec []float32, dimension int) error {
	if len(vec) == 0 {
		return errors.New("vector is empty")
	}
	if dimension > 0 && len(vec) != dimension {
		return fmt.Errorf("vector has %d dimensions, expected %d", len(vec), dimension)
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("vector component %d is not finite", i)
		}
	}
	return nil
}

// truncate limits text to MaxInputChars characters.
func truncate(text string) string {
	if len(text) <= MaxInputChars {
		return text
	}
	cut := MaxInputChars
	// step back to a rune boundary
	for cut > 0 && (text[cut]&0xC0) == 0x80 {
		cut--
	}
	return text[:cut]
}
