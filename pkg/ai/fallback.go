package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
)

// FallbackService routes each call to a preferred provider and falls back
// to the other one on failure.
//   - Summarization: Ollama first (local, free), then Gemini.
//   - Structured extraction and answers: Gemini first, then Ollama.
type FallbackService struct {
	gemini Service
	ollama Service
	logger *slog.Logger
}

// NewFallbackService creates a fallback service over both providers.
// Either may be nil.
func NewFallbackService(gemini, ollama Service, logger *slog.Logger) *FallbackService {
	return &FallbackService{gemini: gemini, ollama: ollama, logger: logger}
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return containsAny(err.Error(),
		"connection refused", "no such host", "network is unreachable",
		"connection reset", "timeout", "dial tcp", "eof")
}

func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(),
		"429", "quota", "rate limit", "too many requests", "resource exhausted", "resource_exhausted")
}

func containsAny(s string, indicators ...string) bool {
	s = strings.ToLower(s)
	for _, ind := range indicators {
		if strings.Contains(s, ind) {
			return true
		}
	}
	return false
}

// try runs call on first, then on second. If second fails with an error
// that retry says is transient, first is tried once more.
func try[T any](f *FallbackService, op string, first, second Service, firstName, secondName string,
	retry func(error) bool, call func(Service) (T, error)) (T, error) {
	var zero T
	if first != nil {
		res, err := call(first)
		if err == nil {
			return res, nil
		}
		f.logger.Warn("AI provider failed, falling back", "op", op, "provider", firstName, "fallback", secondName, "error", err)
	}
	if second != nil {
		res, err := call(second)
		if err == nil {
			return res, nil
		}
		if retry(err) && first != nil {
			f.logger.Warn("AI fallback failed, retrying primary", "op", op, "provider", secondName, "error", err)
			return call(first)
		}
		return zero, fmt.Errorf("%s %s failed: %w", secondName, op, err)
	}
	return zero, fmt.Errorf("%s: %w", op, ErrNoProvider)
}

// SummarizeEmail tries Ollama first, falls back to Gemini.
func (f *FallbackService) SummarizeEmail(ctx context.Context, emailText string) (string, error) {
	return try(f, "summarization", f.ollama, f.gemini, "ollama", "gemini", isQuotaError,
		func(s Service) (string, error) { return s.SummarizeEmail(ctx, emailText) })
}

// ExtractStructured tries Gemini first, falls back to Ollama.
func (f *FallbackService) ExtractStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, error) {
	return try(f, "extraction", f.gemini, f.ollama, "gemini", "ollama", isConnectionError,
		func(s Service) (json.RawMessage, error) { return s.ExtractStructured(ctx, req) })
}

// AnswerQuestion tries Gemini first, falls back to Ollama.
func (f *FallbackService) AnswerQuestion(ctx context.Context, question string, contexts []string) (string, error) {
	return try(f, "answer", f.gemini, f.ollama, "gemini", "ollama", isConnectionError,
		func(s Service) (string, error) { return s.AnswerQuestion(ctx, question, contexts) })
}
