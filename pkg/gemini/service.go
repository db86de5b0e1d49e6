package gemini

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
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash"
)

type GeminiService struct {
	ApiKey  string
	Model   string
	BaseURL string
	client  *http.Client
}

func NewGeminiService(apiKey, model string) *GeminiService {
	if model == "" {
		model = defaultModel
	}
	return &GeminiService{ApiKey: apiKey, Model: model, BaseURL: defaultBaseURL, client: &http.Client{}}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float64         `json:"temperature"`
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseJsonSchema,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (g *GeminiService) generateContent(ctx context.Context, req generateRequest) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", strings.TrimRight(g.BaseURL, "/"), g.Model, g.ApiKey)

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Gemini API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content returned")
	}
	var out strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}
	return out.String(), nil
}

func userContent(text string) []content {
	return []content{{Parts: []part{{Text: text}}}}
}

func (g *GeminiService) SummarizeEmail(ctx context.Context, emailText string) (string, error) {
	text, err := g.generateContent(ctx, generateRequest{
		Contents:         userContent(prompt.Summary(emailText)),
		GenerationConfig: generationConfig{Temperature: 0.3},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ExtractStructured requests JSON output constrained by the request schema.
func (g *GeminiService) ExtractStructured(ctx context.Context, req prompt.Request) (json.RawMessage, error) {
	gen := generateRequest{
		Contents: userContent(req.Prompt),
		GenerationConfig: generationConfig{
			Temperature:      0.2,
			ResponseMIMEType: "application/json",
		},
	}
	if req.System != "" {
		gen.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	if len(req.Schema) > 0 {
		gen.GenerationConfig.ResponseSchema = json.RawMessage(req.Schema)
	}

	text, err := g.generateContent(ctx, gen)
	if err != nil {
		return nil, err
	}
	raw := prompt.ExtractJSON(text)
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("gemini %s: response is not valid JSON", req.Name)
	}
	return json.RawMessage(raw), nil
}

func (g *GeminiService) AnswerQuestion(ctx context.Context, question string, contexts []string) (string, error) {
	text, err := g.generateContent(ctx, generateRequest{
		Contents:         userContent(prompt.Answer(question, contexts)),
		GenerationConfig: generationConfig{Temperature: 0.2},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
