package chroma

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
)

const defaultEmbedModel = "text-embedding-004"

// GeminiEmbedder produces email embeddings through chroma-go's Gemini
// embedding function.
type GeminiEmbedder struct {
	ef *gemini.GeminiEmbeddingFunction
}

func NewGeminiEmbedder(apiKey, model string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if model == "" {
		model = defaultEmbedModel
	}
	// the embedding function only reads its key from the environment
	if err := os.Setenv("GEMINI_API_KEY", apiKey); err != nil {
		return nil, err
	}
	ef, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel(embeddings.EmbeddingModel(model)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}
	return &GeminiEmbedder{ef: ef}, nil
}

// EmbedText returns nil for blank text without calling the API.
func (g *GeminiEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	emb, err := g.ef.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if emb == nil {
		return nil, nil
	}
	return emb.ContentAsFloat32(), nil
}

// Function exposes the embedding function for collection creation.
func (g *GeminiEmbedder) Function() embeddings.EmbeddingFunction {
	return g.ef
}
