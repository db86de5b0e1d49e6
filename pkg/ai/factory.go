package ai

import (
	"log/slog"
)

// NewRouter builds the runtime-switchable Service. gemini may be nil when
// no API key is configured; ollama always exists and reads its address
// from settings.
func NewRouter(settings *Settings, gemini Service, ollama *OllamaService, logger *slog.Logger) *Router {
	r := &Router{settings: settings, gemini: gemini}
	if ollama != nil {
		r.ollama = ollama
	}
	r.fallback = NewFallbackService(r.gemini, r.ollama, logger)
	return r
}

// NewOllamaFromSettings creates an Ollama service that follows runtime
// settings changes.
func NewOllamaFromSettings(settings *Settings, embedModel string) *OllamaService {
	return NewOllamaServiceWithGetters(settings.OllamaBaseURL, settings.OllamaModel, embedModel)
}
