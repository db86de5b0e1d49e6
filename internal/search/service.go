// Package search answers semantic queries over stored mail.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/email/repository"
	"github.com/usemox/mox/pkg/ai"
	"github.com/usemox/mox/pkg/fuzzy"
	"github.com/usemox/mox/pkg/sanitize"
)

const (
	defaultK           = 5
	suggestionPool     = 200
	maxContextPerEmail = 2000
)

// VectorIndex finds the stored vectors closest to a query vector.
type VectorIndex interface {
	Nearest(ctx context.Context, accountID string, query []float32, k int) ([]domain.Neighbor, error)
}

type Result struct {
	Email    *domain.Email `json:"email"`
	Distance float64       `json:"distance"`
}

type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Result `json:"sources"`
}

type Service struct {
	embedder ai.Embedder
	index    VectorIndex
	emails   repository.EmailRepository
	llm      ai.Service
	logger   *slog.Logger
}

func NewService(embedder ai.Embedder, index VectorIndex, emails repository.EmailRepository, llm ai.Service, logger *slog.Logger) *Service {
	return &Service{
		embedder: embedder,
		index:    index,
		emails:   emails,
		llm:      llm,
		logger:   logger.With("component", "search"),
	}
}

// Search returns the k stored emails nearest to query, closest first.
// Emails deleted since they were indexed are left out.
func (s *Service) Search(ctx context.Context, accountID, query string, k int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if k <= 0 {
		k = defaultK
	}

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vector) == 0 {
		return nil, nil
	}

	neighbors, err := s.index.Nearest(ctx, accountID, vector, k)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.EmailID
	}
	emails, err := s.emails.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Email, len(emails))
	for _, e := range emails {
		byID[e.ID] = e
	}

	results := make([]Result, 0, len(neighbors))
	for _, n := range neighbors {
		e, ok := byID[n.EmailID]
		if !ok || e.AccountID != accountID {
			continue
		}
		results = append(results, Result{Email: e, Distance: n.Distance})
	}
	s.logger.Debug("Semantic search", "account_id", accountID, "k", k, "hits", len(results))
	return results, nil
}

// Suggest completes a partial query from recent subjects and senders.
func (s *Service) Suggest(ctx context.Context, accountID, query string, limit int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = 5
	}

	recent, _, err := s.emails.List(ctx, accountID, "", suggestionPool, 0)
	if err != nil {
		return nil, err
	}

	candidates := make([]fuzzy.Candidate, 0, 2*len(recent))
	for _, e := range recent {
		name, address := sender(e.From)
		if name != "" || address != "" {
			value := name
			if value == "" {
				value = address
			}
			candidates = append(candidates, fuzzy.Candidate{
				Value:  value,
				Fields: []fuzzy.Field{{Text: name, Weight: 1}, {Text: address, Weight: 0.8}},
			})
		}
		if e.Subject != "" {
			candidates = append(candidates, fuzzy.Candidate{
				Value:  e.Subject,
				Fields: []fuzzy.Field{{Text: e.Subject, Weight: 0.9}},
			})
		}
	}

	out := fuzzy.Rank(query, candidates, limit)
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func sender(from string) (name, address string) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return "", strings.TrimSpace(from)
	}
	return addr.Name, addr.Address
}

// Ask answers question from the account's nearest emails.
func (s *Service) Ask(ctx context.Context, accountID, question string) (*Answer, error) {
	sources, err := s.Search(ctx, accountID, question, defaultK)
	if err != nil {
		return nil, err
	}

	contexts := make([]string, 0, len(sources))
	for _, r := range sources {
		contexts = append(contexts, emailContext(r.Email))
	}

	answer, err := s.llm.AnswerQuestion(ctx, question, contexts)
	if err != nil {
		return nil, fmt.Errorf("answer question: %w", err)
	}
	if sources == nil {
		sources = []Result{}
	}
	return &Answer{Answer: strings.TrimSpace(answer), Sources: sources}, nil
}

func emailContext(e *domain.Email) string {
	var html, plain string
	if e.Body != nil {
		html, plain = e.Body.HTML, e.Body.Plain
	}
	body := sanitize.EmailText("", html, plain)
	if body == "" {
		body = e.Snippet
	}
	if len(body) > maxContextPerEmail {
		body = strings.ToValidUTF8(body[:maxContextPerEmail], "")
	}
	return fmt.Sprintf("From: %s\nSubject: %s\nDate: %s\n\n%s", e.From, e.Subject, e.Date.Format("2006-01-02 15:04"), body)
}
