package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/usemox/mox/internal/account/domain"
	"github.com/usemox/mox/internal/account/repository"
	emailrepo "github.com/usemox/mox/internal/email/repository"
	"golang.org/x/oauth2"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Options struct {
	JWTSecret string
	JWTTTL    time.Duration
	// Exchange enables registration with an authorization code.
	Exchange CodeExchanger
	// Contacts is cleared together with the account when set.
	Contacts ContactStore
}

type accountUsecase struct {
	accounts  repository.AccountRepository
	devices   repository.DeviceRepository
	emails    emailrepo.EmailRepository
	providers *Providers
	factory   ProviderFactory
	sync      SyncController
	push      PushTeardown
	opts      Options
	logger    *slog.Logger
}

// NewAccountUsecase wires account management. push may be nil.
func NewAccountUsecase(
	accounts repository.AccountRepository,
	devices repository.DeviceRepository,
	emails emailrepo.EmailRepository,
	providers *Providers,
	factory ProviderFactory,
	sync SyncController,
	push PushTeardown,
	opts Options,
	logger *slog.Logger,
) AccountUsecase {
	if opts.JWTTTL <= 0 {
		opts.JWTTTL = 7 * 24 * time.Hour
	}
	return &accountUsecase{
		accounts:  accounts,
		devices:   devices,
		emails:    emails,
		providers: providers,
		factory:   factory,
		sync:      sync,
		push:      push,
		opts:      opts,
		logger:    logger.With("component", "account"),
	}
}

// Register verifies the tokens against the mailbox profile, upserts the
// account by address and starts its sync.
func (u *accountUsecase) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	if in.Code != "" {
		if u.opts.Exchange == nil {
			return nil, errors.New("authorization code exchange is not configured")
		}
		tok, err := u.opts.Exchange(ctx, in.Code, in.RedirectURI)
		if err != nil {
			return nil, err
		}
		in.AccessToken, in.RefreshToken, in.Expiry = tok.AccessToken, tok.RefreshToken, tok.Expiry
	}
	if strings.TrimSpace(in.AccessToken) == "" {
		return nil, errors.New("access token or authorization code is required")
	}
	token := &oauth2.Token{
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		Expiry:       in.Expiry,
		TokenType:    "Bearer",
	}

	provider, err := u.factory(ctx, token, nil)
	if err != nil {
		return nil, err
	}
	profile, err := provider.GetProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify mailbox: %w", err)
	}

	acc, err := u.accounts.FindByEmail(ctx, profile.EmailAddress)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &domain.Account{
			Email:        profile.EmailAddress,
			Name:         in.Name,
			AccessToken:  in.AccessToken,
			RefreshToken: in.RefreshToken,
			TokenExpiry:  in.Expiry,
		}
		if err := u.accounts.Create(ctx, acc); err != nil {
			return nil, err
		}
		u.logger.Info("Account registered", "account_id", acc.ID)
	} else {
		if in.Name != "" {
			acc.Name = in.Name
		}
		acc.AccessToken = in.AccessToken
		if in.RefreshToken != "" {
			acc.RefreshToken = in.RefreshToken
		}
		acc.TokenExpiry = in.Expiry
		if err := u.accounts.UpdateProfile(ctx, acc); err != nil {
			return nil, err
		}
		u.providers.Forget(acc.ID)
		u.logger.Info("Account credentials updated", "account_id", acc.ID)
	}

	session, err := u.issue(acc)
	if err != nil {
		return nil, err
	}
	if u.sync != nil {
		u.sync.StartAsync(acc.ID)
	}
	return session, nil
}

func (u *accountUsecase) issue(acc *domain.Account) (*Session, error) {
	now := time.Now()
	expires := now.Add(u.opts.JWTTTL)
	claims := jwt.RegisteredClaims{
		Subject:   acc.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(u.opts.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Account: acc, Token: signed, ExpiresAt: expires}, nil
}

func (u *accountUsecase) ValidateToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(u.opts.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (u *accountUsecase) Get(ctx context.Context, id string) (*domain.Account, error) {
	acc, err := u.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, domain.ErrAccountNotFound
	}
	return acc, nil
}

// Remove stops sync and deletes the account with all its local data.
func (u *accountUsecase) Remove(ctx context.Context, id string) error {
	if _, err := u.Get(ctx, id); err != nil {
		return err
	}
	if u.sync != nil {
		u.sync.Stop(ctx, id)
	}
	u.providers.Forget(id)

	if err := u.emails.DeleteByAccount(ctx, id); err != nil {
		return fmt.Errorf("delete mail: %w", err)
	}
	if err := u.devices.DeleteTokensByAccountID(ctx, id); err != nil {
		return fmt.Errorf("delete devices: %w", err)
	}
	if u.opts.Contacts != nil {
		if err := u.opts.Contacts.DeleteByAccount(ctx, id); err != nil {
			return fmt.Errorf("delete contacts: %w", err)
		}
	}
	if err := u.accounts.Delete(ctx, id); err != nil {
		return err
	}
	u.logger.Info("Account removed", "account_id", id)

	if u.push != nil {
		remaining, err := u.accounts.List(ctx)
		if err == nil && len(remaining) == 0 {
			if err := u.push.Teardown(ctx); err != nil {
				u.logger.Warn("Failed to tear down push subscription", "error", err)
			}
		}
	}
	return nil
}

func (u *accountUsecase) RegisterDevice(ctx context.Context, accountID, token, deviceInfo string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("device token is required")
	}
	return u.devices.SaveToken(ctx, accountID, token, deviceInfo)
}

func (u *accountUsecase) UnregisterDevice(ctx context.Context, token string) error {
	return u.devices.DeleteToken(ctx, token)
}
