package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/usemox/mox/internal/email/domain"
	peopledomain "github.com/usemox/mox/internal/people/domain"
	"google.golang.org/api/iterator"
)

// ListCall records one ListEmails request.
type ListCall struct {
	PageToken string
	Since     *time.Time
}

// LabelChange records one ModifyLabels request.
type LabelChange struct {
	IDs, Add, Remove []string
}

// Provider is an in-memory domain.MailProvider.
type Provider struct {
	mu sync.Mutex

	// Pages maps a page token ("" for the first page) to its listing.
	Pages map[string]*domain.EmailPage
	// SincePages, when set, serves listings restricted by a date.
	SincePages map[string]*domain.EmailPage
	ListErr    error
	// FailOn fails the listing of specific page tokens.
	FailOn map[string]error
	Lists  []ListCall

	History      []*domain.HistoryBatch
	HistoryErr   error
	HistorySince []uint64

	Messages    map[string]*domain.Email
	Attachments map[string][]byte
	Sent        []*domain.OutgoingEmail
	SentID      string
	Labels      []LabelChange

	WatchHistoryID uint64
	WatchErr       error
	Watches        int
	StoppedWatches int

	Profile *domain.Profile

	// ContactPages maps a page token ("" for the first page) to its contacts.
	ContactPages map[string]*peopledomain.ContactPage
	ContactsErr  error
	ContactCalls []string
}

func NewProvider() *Provider {
	return &Provider{
		Pages:       map[string]*domain.EmailPage{},
		Messages:    map[string]*domain.Email{},
		Attachments: map[string][]byte{},
		FailOn:      map[string]error{},
	}
}

func (p *Provider) ListEmails(_ context.Context, _ int64, pageToken string, since *time.Time) (*domain.EmailPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Lists = append(p.Lists, ListCall{PageToken: pageToken, Since: since})
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	if err := p.FailOn[pageToken]; err != nil {
		return nil, err
	}
	pages := p.Pages
	if since != nil && p.SincePages != nil {
		pages = p.SincePages
	}
	page, ok := pages[pageToken]
	if !ok {
		return &domain.EmailPage{}, nil
	}
	return page, nil
}

func (p *Provider) ListCalls() []ListCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ListCall(nil), p.Lists...)
}

// Fail sets or clears the failure for one page token.
func (p *Provider) Fail(pageToken string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.FailOn, pageToken)
		return
	}
	p.FailOn[pageToken] = err
}

func (p *Provider) ListHistory(_ context.Context, since uint64) domain.HistoryIterator {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.HistorySince = append(p.HistorySince, since)
	return &historyIterator{pages: p.History, err: p.HistoryErr}
}

type historyIterator struct {
	pages []*domain.HistoryBatch
	err   error
	pos   int
}

func (it *historyIterator) Next(ctx context.Context) (*domain.HistoryBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.err != nil {
		return nil, it.err
	}
	if it.pos >= len(it.pages) {
		return nil, iterator.Done
	}
	page := it.pages[it.pos]
	it.pos++
	return page, nil
}

func (p *Provider) GetEmail(_ context.Context, id string) (*domain.Email, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Messages[id], nil
}

func (p *Provider) GetAttachment(_ context.Context, _, attachmentID string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.Attachments[attachmentID]
	if !ok {
		return nil, errors.New("attachment not found")
	}
	return data, nil
}

func (p *Provider) SendEmail(_ context.Context, msg *domain.OutgoingEmail) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Sent = append(p.Sent, msg)
	return p.SentID, nil
}

func (p *Provider) ModifyLabels(_ context.Context, ids, add, remove []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Labels = append(p.Labels, LabelChange{IDs: ids, Add: add, Remove: remove})
	return nil
}

func (p *Provider) RegisterChangeWatch(_ context.Context, _ string) (*domain.WatchResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Watches++
	if p.WatchErr != nil {
		return nil, p.WatchErr
	}
	return &domain.WatchResponse{HistoryID: p.WatchHistoryID, Expiration: time.Now().Add(7 * 24 * time.Hour)}, nil
}

func (p *Provider) StopChangeWatch(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StoppedWatches++
	return nil
}

func (p *Provider) GetProfile(_ context.Context) (*domain.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Profile == nil {
		return nil, errors.New("no profile")
	}
	return p.Profile, nil
}

func (p *Provider) ListContacts(_ context.Context, pageToken string) (*peopledomain.ContactPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ContactCalls = append(p.ContactCalls, pageToken)
	if p.ContactsErr != nil {
		return nil, p.ContactsErr
	}
	page, ok := p.ContactPages[pageToken]
	if !ok {
		return &peopledomain.ContactPage{}, nil
	}
	return page, nil
}

// Resolver hands out providers by account id.
type Resolver map[string]domain.MailProvider

func (r Resolver) ProviderFor(_ context.Context, accountID string) (domain.MailProvider, error) {
	p, ok := r[accountID]
	if !ok {
		return nil, errors.New("no provider for account " + accountID)
	}
	return p, nil
}
