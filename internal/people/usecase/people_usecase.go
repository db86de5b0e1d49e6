// Package usecase mirrors account address books and searches them.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/emersion/go-message/mail"
	emaildomain "github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/people/domain"
	"github.com/usemox/mox/internal/people/repository"
)

const searchLimit = 5

type PeopleUsecase interface {
	// SyncContacts pages through the provider's connections and stores
	// them. A call while a sync for the account runs returns nil at once.
	SyncContacts(ctx context.Context, accountID string) error
	// Search returns matching senders of stored mail followed by
	// matching contacts.
	Search(ctx context.Context, accountID, query string) ([]domain.Contact, error)
}

type peopleUsecase struct {
	people    repository.PeopleRepository
	providers emaildomain.ProviderResolver
	logger    *slog.Logger

	mu      sync.Mutex
	running map[string]bool
}

func NewPeopleUsecase(people repository.PeopleRepository, providers emaildomain.ProviderResolver, logger *slog.Logger) PeopleUsecase {
	return &peopleUsecase{
		people:    people,
		providers: providers,
		logger:    logger.With("component", "people"),
		running:   make(map[string]bool),
	}
}

func (u *peopleUsecase) begin(accountID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running[accountID] {
		return false
	}
	u.running[accountID] = true
	return true
}

func (u *peopleUsecase) end(accountID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.running, accountID)
}

func (u *peopleUsecase) SyncContacts(ctx context.Context, accountID string) error {
	if !u.begin(accountID) {
		return nil
	}
	defer u.end(accountID)
	log := u.logger.With("account_id", accountID)

	provider, err := u.providers.ProviderFor(ctx, accountID)
	if err != nil {
		return fmt.Errorf("resolve provider: %w", err)
	}
	source, ok := provider.(domain.ContactSource)
	if !ok {
		log.Debug("Mailbox client has no address book")
		return nil
	}

	stored := 0
	pageToken := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := source.ListContacts(ctx, pageToken)
		if err != nil {
			return fmt.Errorf("list contacts: %w", err)
		}
		if err := u.people.InsertContacts(ctx, accountID, page.Contacts); err != nil {
			return fmt.Errorf("store contacts: %w", err)
		}
		stored += len(page.Contacts)
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	log.Info("Contacts synced", "count", stored)
	return nil
}

func (u *peopleUsecase) Search(ctx context.Context, accountID, query string) ([]domain.Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Contact{}, nil
	}

	people, err := u.people.Search(ctx, accountID, query, searchLimit)
	if err != nil {
		return nil, err
	}
	senders, err := u.people.MatchSenders(ctx, accountID, query, searchLimit)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{})
	for _, p := range people {
		for _, addr := range p.EmailAddresses {
			known[addr] = struct{}{}
		}
	}

	out := make([]domain.Contact, 0, len(senders)+len(people))
	for _, s := range senders {
		name, address := parseSender(s.FromAddress)
		if _, dup := known[strings.ToLower(address)]; dup {
			continue
		}
		out = append(out, domain.Contact{
			ID:             s.EmailID,
			Name:           name,
			EmailAddresses: []string{address},
		})
	}
	return append(out, people...), nil
}

func parseSender(from string) (name, address string) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return "", strings.TrimSpace(from)
	}
	return addr.Name, addr.Address
}
