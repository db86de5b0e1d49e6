package ai

import (
	"context"
	"encoding/json"
	"sync"
)

// Settings holds the AI options that can be changed while the server runs.
type Settings struct {
	mu            sync.RWMutex
	provider      ProviderType
	ollamaBaseURL string
	ollamaModel   string
}

// SettingsSnapshot is a copy of Settings for reading and updating.
type SettingsSnapshot struct {
	Provider      ProviderType `json:"provider"`
	OllamaBaseURL string       `json:"ollama_base_url"`
	OllamaModel   string       `json:"ollama_model"`
}

func NewSettings(provider ProviderType, ollamaBaseURL, ollamaModel string) *Settings {
	if ollamaBaseURL == "" {
		ollamaBaseURL = defaultOllamaURL
	}
	if ollamaModel == "" {
		ollamaModel = defaultOllamaModel
	}
	return &Settings{provider: provider, ollamaBaseURL: ollamaBaseURL, ollamaModel: ollamaModel}
}

func (s *Settings) Snapshot() SettingsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SettingsSnapshot{Provider: s.provider, OllamaBaseURL: s.ollamaBaseURL, OllamaModel: s.ollamaModel}
}

// Update applies the non-empty fields of u.
func (s *Settings) Update(u SettingsSnapshot) SettingsSnapshot {
	s.mu.Lock()
	if u.Provider != "" {
		s.provider = ParseProvider(string(u.Provider))
	}
	if u.OllamaBaseURL != "" {
		s.ollamaBaseURL = u.OllamaBaseURL
	}
	if u.OllamaModel != "" {
		s.ollamaModel = u.OllamaModel
	}
	s.mu.Unlock()
	return s.Snapshot()
}

func (s *Settings) Provider() ProviderType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

func (s *Settings) OllamaBaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ollamaBaseURL
}

func (s *Settings) OllamaModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ollamaModel
}

// Router picks the provider named by Settings on every call.
type Router struct {
	settings *Settings
	gemini   Service
	ollama   Service
	fallback Service
}

func (r *Router) current() (Service, error) {
	switch r.settings.Provider() {
	case ProviderGemini:
		if r.gemini != nil {
			return r.gemini, nil
		}
	case ProviderOllama:
		if r.ollama != nil {
			return r.ollama, nil
		}
	default:
		return r.fallback, nil
	}
	return nil, ErrNoProvider
}

func (r *Router) SummarizeEmail(ctx context.Context, emailText string) (string, error) {
	svc, err := r.current()
	if err != nil {
		return "", err
	}
	return svc.SummarizeEmail(ctx, emailText)
}

func (r *Router) ExtractStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, error) {
	svc, err := r.current()
	if err != nil {
		return nil, err
	}
	return svc.ExtractStructured(ctx, req)
}

func (r *Router) AnswerQuestion(ctx context.Context, question string, contexts []string) (string, error) {
	svc, err := r.current()
	if err != nil {
		return "", err
	}
	return svc.AnswerQuestion(ctx, question, contexts)
}
