package usecase

import (
	"context"
	"time"

	"github.com/usemox/mox/internal/account/domain"
	"golang.org/x/oauth2"
)

// RegisterInput carries either OAuth tokens obtained by the client or an
// authorization code to exchange.
type RegisterInput struct {
	Code         string    `json:"code"`
	RedirectURI  string    `json:"redirect_uri"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	Name         string    `json:"name"`
}

// Session is an issued API token.
type Session struct {
	Account   *domain.Account `json:"account"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// AccountUsecase manages connected mailboxes and their API sessions.
type AccountUsecase interface {
	Register(ctx context.Context, in RegisterInput) (*Session, error)
	// ValidateToken returns the account id the token was issued to.
	ValidateToken(token string) (string, error)
	Get(ctx context.Context, id string) (*domain.Account, error)
	Remove(ctx context.Context, id string) error

	RegisterDevice(ctx context.Context, accountID, token, deviceInfo string) error
	UnregisterDevice(ctx context.Context, token string) error
}

// CodeExchanger trades an OAuth authorization code for tokens.
type CodeExchanger func(ctx context.Context, code, redirectURL string) (*oauth2.Token, error)

// SyncController starts and stops mailbox sync for an account.
type SyncController interface {
	StartAsync(accountID string)
	Stop(ctx context.Context, accountID string)
}

// PushTeardown removes push infrastructure once no account needs it.
type PushTeardown interface {
	Teardown(ctx context.Context) error
}

// ContactStore holds an account's mirrored address book.
type ContactStore interface {
	DeleteByAccount(ctx context.Context, accountID string) error
}
