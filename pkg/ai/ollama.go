package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/usemox/mox/pkg/ai/prompt"
)

const (
	defaultOllamaURL        = "http://localhost:11434"
	defaultOllamaModel      = "llama3"
	defaultOllamaEmbedModel = "nomic-embed-text"
)

// OllamaService implements Service and Embedder against a local Ollama.
type OllamaService struct {
	getBaseURL func() string
	getModel   func() string
	embedModel string
	client     *http.Client
}

// NewOllamaService creates an Ollama service with fixed settings.
func NewOllamaService(baseURL, model, embedModel string) *OllamaService {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return NewOllamaServiceWithGetters(
		func() string { return baseURL },
		func() string { return model },
		embedModel,
	)
}

// NewOllamaServiceWithGetters reads base URL and model on every call so
// runtime settings changes apply without a restart.
func NewOllamaServiceWithGetters(getBaseURL, getModel func() string, embedModel string) *OllamaService {
	if embedModel == "" {
		embedModel = defaultOllamaEmbedModel
	}
	return &OllamaService{
		getBaseURL: getBaseURL,
		getModel:   getModel,
		embedModel: embedModel,
		client:     &http.Client{},
	}
}

type ollamaGenerateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Format  json.RawMessage `json:"format,omitempty"`
	Stream  bool            `json:"stream"`
	Options map[string]any  `json:"options,omitempty"`
}

func (o *OllamaService) generate(ctx context.Context, req ollamaGenerateRequest) (string, error) {
	req.Model = o.getModel()
	var result struct {
		Response string `json:"response"`
	}
	if err := o.post(ctx, "/api/generate", req, &result); err != nil {
		return "", err
	}
	return result.Response, nil
}

func (o *OllamaService) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(o.getBaseURL(), "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// SummarizeEmail implements Service
func (o *OllamaService) SummarizeEmail(ctx context.Context, emailText string) (string, error) {
	text, err := o.generate(ctx, ollamaGenerateRequest{
		Prompt:  prompt.Summary(emailText),
		Options: map[string]any{"temperature": 0.3, "num_predict": 150},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ExtractStructured passes the schema through Ollama's format field.
func (o *OllamaService) ExtractStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, error) {
	gen := ollamaGenerateRequest{
		Prompt:  req.Prompt,
		System:  req.System,
		Options: map[string]any{"temperature": 0.2},
	}
	if len(req.Schema) > 0 {
		gen.Format = json.RawMessage(req.Schema)
	}
	text, err := o.generate(ctx, gen)
	if err != nil {
		return nil, err
	}

	raw := prompt.ExtractJSON(text)
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("ollama %s: response is not valid JSON", req.Name)
	}
	return json.RawMessage(raw), nil
}

// AnswerQuestion implements Service
func (o *OllamaService) AnswerQuestion(ctx context.Context, question string, contexts []string) (string, error) {
	text, err := o.generate(ctx, ollamaGenerateRequest{
		Prompt:  prompt.Answer(question, contexts),
		Options: map[string]any{"temperature": 0.2},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// EmbedText implements Embedder using /api/embed.
func (o *OllamaService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	payload := map[string]any{"model": o.embedModel, "input": text}
	if err := o.post(ctx, "/api/embed", payload, &result); err != nil {
		return nil, err
	}
	if len(result.Embeddings) == 0 {
		return nil, nil
	}
	return result.Embeddings[0], nil
}

// Ping checks that the configured Ollama server answers.
func (o *OllamaService) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(o.getBaseURL(), "/")+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama API error (%d)", resp.StatusCode)
	}
	return nil
}
