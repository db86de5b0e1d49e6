package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/usemox/mox/internal/account/domain"
	"github.com/usemox/mox/internal/account/repository"
	emaildomain "github.com/usemox/mox/internal/email/domain"
	"golang.org/x/oauth2"
)

// ProviderFactory builds a mailbox client from OAuth credentials. onRefresh
// may be nil.
type ProviderFactory func(ctx context.Context, token *oauth2.Token, onRefresh func(*oauth2.Token) error) (emaildomain.MailProvider, error)

// Providers resolves and caches one mailbox client per account. Refreshed
// tokens are written back to the account row.
type Providers struct {
	accounts repository.AccountRepository
	factory  ProviderFactory
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]emaildomain.MailProvider
}

func NewProviders(accounts repository.AccountRepository, factory ProviderFactory, logger *slog.Logger) *Providers {
	return &Providers{
		accounts: accounts,
		factory:  factory,
		logger:   logger.With("component", "providers"),
		clients:  make(map[string]emaildomain.MailProvider),
	}
}

func (p *Providers) ProviderFor(ctx context.Context, accountID string) (emaildomain.MailProvider, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[accountID]; ok {
		return c, nil
	}

	acc, err := p.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}

	// the client outlives the request that first asked for it
	client, err := p.factory(context.WithoutCancel(ctx), acc.OAuthToken(), func(t *oauth2.Token) error {
		p.logger.Info("Persisting refreshed token", "account_id", accountID)
		return p.accounts.UpdateTokens(context.Background(), accountID, t.AccessToken, t.RefreshToken, t.Expiry)
	})
	if err != nil {
		return nil, err
	}
	p.clients[accountID] = client
	return client, nil
}

// Forget drops the cached client, e.g. after new tokens were stored.
func (p *Providers) Forget(accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, accountID)
}
