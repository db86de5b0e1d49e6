package ai

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/usemox/mox/pkg/ai/prompt"
)

// ErrNoProvider is returned when no configured provider can serve a call.
var ErrNoProvider = errors.New("no AI provider available")

// StructuredRequest asks a provider for JSON output matching Schema.
type StructuredRequest = prompt.Request

// Service is the LLM surface used by summaries, extraction and Ask.
// Implement this interface to add new AI providers.
type Service interface {
	SummarizeEmail(ctx context.Context, emailText string) (string, error)
	ExtractStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, error)
	AnswerQuestion(ctx context.Context, question string, contexts []string) (string, error)
}

// Embedder turns text into a vector. An empty result means no embedding.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)

// ParseProvider maps a settings value to a ProviderType; unknown values
// become ProviderAuto.
func ParseProvider(s string) ProviderType {
	switch ProviderType(s) {
	case ProviderGemini, ProviderOllama:
		return ProviderType(s)
	default:
		return ProviderAuto
	}
}
