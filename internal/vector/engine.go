// Package vector turns manifest entities into embedded chunks and answers
// natural language queries over them. Embedding backends are pluggable:
// Ollama for local models, Google GenAI for hosted ones.
package vector

import (
	"context"
	"math"

	"apikb/internal/config"
	kberrors "apikb/internal/errors"
)

// Engine generates vector embeddings for text
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// NewEngine creates an embedding engine from the vector configuration.
// Provider "none" returns a typed unavailable error so callers can degrade
// to manifest-only operation.
func NewEngine(cfg config.VectorConfig) (Engine, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel), nil
	case "genai":
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel)
	case "none", "":
		return nil, kberrors.New(kberrors.EmbeddingsUnavailable,
			"embedding provider is disabled", nil)
	default:
		return nil, kberrors.New(kberrors.ConfigInvalid,
			"unsupported embedding provider: "+cfg.Provider, nil)
	}
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns 0 for mismatched dimensions or zero-magnitude vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, aMag, bMag float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i] * b[i])
		aMag += float64(a[i] * a[i])
		bMag += float64(b[i] * b[i])
	}

	if aMag == 0 || bMag == 0 {
		return 0
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag))
}
