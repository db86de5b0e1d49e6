package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"
)

// TokenUpdateFunc is called after the OAuth token was refreshed.
type TokenUpdateFunc func(*oauth2.Token) error

// Service builds per-account Gmail clients from stored OAuth tokens.
type Service struct {
	config *oauth2.Config
	logger *slog.Logger
}

type notifyTokenSource struct {
	mu       sync.Mutex
	src      oauth2.TokenSource
	current  string
	callback TokenUpdateFunc
	logger   *slog.Logger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callback != nil && s.current != t.AccessToken {
		s.current = t.AccessToken
		if err := s.callback(t); err != nil {
			s.logger.Error("Failed to persist refreshed token", "error", err)
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string, logger *slog.Logger) *Service {
	return &Service{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailModifyScope, gmail.GmailSendScope, people.ContactsReadonlyScope},
		},
		logger: logger,
	}
}

// OAuthConfig exposes the client configuration for the code exchange.
func (s *Service) OAuthConfig(redirectURL string) *oauth2.Config {
	cfg := *s.config
	cfg.RedirectURL = redirectURL
	return &cfg
}

// Exchange trades an authorization code for tokens.
func (s *Service) Exchange(ctx context.Context, code, redirectURL string) (*oauth2.Token, error) {
	tok, err := s.OAuthConfig(redirectURL).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// NewClient returns a MailProvider for one account. onRefresh receives
// every refreshed token so it can be persisted.
func (s *Service) NewClient(ctx context.Context, token *oauth2.Token, onRefresh TokenUpdateFunc) (*Client, error) {
	tok := *token
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	// force a refresh on first use when we cannot trust the stored expiry
	if tok.RefreshToken != "" && tok.Expiry.IsZero() {
		tok.Expiry = time.Now()
	}

	src := &notifyTokenSource{
		src:      s.config.TokenSource(ctx, &tok),
		current:  tok.AccessToken,
		callback: onRefresh,
		logger:   s.logger,
	}

	httpClient := oauth2.NewClient(ctx, src)
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	contacts, err := people.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create People service: %w", err)
	}
	client := NewClientWithService(srv, s.logger)
	client.SetPeopleService(contacts)
	return client, nil
}
