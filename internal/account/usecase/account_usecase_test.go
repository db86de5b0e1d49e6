package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"github.com/usemox/mox/internal/account/domain"
	"github.com/usemox/mox/internal/account/repository"
	emaildomain "github.com/usemox/mox/internal/email/domain"
	emailrepo "github.com/usemox/mox/internal/email/repository"
	peopledomain "github.com/usemox/mox/internal/people/domain"
	peoplerepo "github.com/usemox/mox/internal/people/repository"
	"github.com/usemox/mox/internal/testutil"
	"github.com/usemox/mox/pkg/logger"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

type syncRecorder struct {
	mu      sync.Mutex
	started []string
	stopped []string
}

func (s *syncRecorder) StartAsync(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, id)
}

func (s *syncRecorder) Stop(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, id)
}

type teardownRecorder struct{ calls int }

func (t *teardownRecorder) Teardown(context.Context) error {
	t.calls++
	return nil
}

type fixture struct {
	db        *gorm.DB
	accounts  repository.AccountRepository
	devices   repository.DeviceRepository
	emails    emailrepo.EmailRepository
	people    peoplerepo.PeopleRepository
	provider  *testutil.Provider
	providers *Providers
	sync      *syncRecorder
	push      *teardownRecorder
	tokens    []*oauth2.Token
	usecase   AccountUsecase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:       testutil.NewDB(t),
		provider: testutil.NewProvider(),
		sync:     &syncRecorder{},
		push:     &teardownRecorder{},
	}
	f.provider.Profile = &emaildomain.Profile{EmailAddress: "bob@example.com", HistoryID: 10}
	f.accounts = repository.NewAccountRepository(f.db)
	f.devices = repository.NewDeviceRepository(f.db)
	f.emails = emailrepo.NewEmailRepository(f.db)
	f.people = peoplerepo.NewPeopleRepository(f.db)

	factory := func(_ context.Context, tok *oauth2.Token, _ func(*oauth2.Token) error) (emaildomain.MailProvider, error) {
		f.tokens = append(f.tokens, tok)
		return f.provider, nil
	}
	f.providers = NewProviders(f.accounts, factory, logger.Discard())
	f.usecase = NewAccountUsecase(f.accounts, f.devices, f.emails, f.providers, factory, f.sync, f.push,
		Options{JWTSecret: "secret", JWTTTL: time.Hour, Contacts: f.people}, logger.Discard())
	return f
}

func TestRegisterCreatesAccountAndStartsSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.usecase.Register(ctx, RegisterInput{AccessToken: "at", RefreshToken: "rt", Name: "Bob"})
	be.Err(t, err, nil)
	be.Equal(t, session.Account.Email, "bob@example.com")
	be.True(t, session.Token != "")
	be.Equal(t, f.sync.started, []string{session.Account.ID})

	stored, err := f.accounts.FindByEmail(ctx, "bob@example.com")
	be.Err(t, err, nil)
	be.Equal(t, stored.RefreshToken, "rt")

	id, err := f.usecase.ValidateToken(session.Token)
	be.Err(t, err, nil)
	be.Equal(t, id, stored.ID)
}

func TestRegisterTwiceUpdatesCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.usecase.Register(ctx, RegisterInput{AccessToken: "at1", RefreshToken: "rt1"})
	be.Err(t, err, nil)
	second, err := f.usecase.Register(ctx, RegisterInput{AccessToken: "at2"})
	be.Err(t, err, nil)
	be.Equal(t, second.Account.ID, first.Account.ID)

	stored, _ := f.accounts.FindByID(ctx, first.Account.ID)
	be.Equal(t, stored.AccessToken, "at2")
	be.Equal(t, stored.RefreshToken, "rt1")

	all, _ := f.accounts.List(ctx)
	be.Equal(t, len(all), 1)
}

func TestRegisterRejectsUnverifiedTokens(t *testing.T) {
	f := newFixture(t)
	f.provider.Profile = nil

	_, err := f.usecase.Register(context.Background(), RegisterInput{AccessToken: "bad"})
	be.True(t, err != nil)
	be.Equal(t, len(f.sync.started), 0)

	_, err = f.usecase.Register(context.Background(), RegisterInput{})
	be.True(t, err != nil)
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	f := newFixture(t)
	session, err := f.usecase.Register(context.Background(), RegisterInput{AccessToken: "at"})
	be.Err(t, err, nil)

	other := NewAccountUsecase(f.accounts, f.devices, f.emails, f.providers, nil, nil, nil,
		Options{JWTSecret: "different"}, logger.Discard())
	_, err = other.ValidateToken(session.Token)
	be.Err(t, err, ErrInvalidToken)

	_, err = f.usecase.ValidateToken("not-a-jwt")
	be.Err(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	f := newFixture(t)
	expired := NewAccountUsecase(f.accounts, f.devices, f.emails, f.providers,
		func(context.Context, *oauth2.Token, func(*oauth2.Token) error) (emaildomain.MailProvider, error) {
			return f.provider, nil
		}, nil, nil, Options{JWTSecret: "secret", JWTTTL: time.Nanosecond}, logger.Discard())

	session, err := expired.Register(context.Background(), RegisterInput{AccessToken: "at"})
	be.Err(t, err, nil)
	time.Sleep(1100 * time.Millisecond)
	_, err = expired.ValidateToken(session.Token)
	be.Err(t, err, ErrInvalidToken)
}

func TestRemoveDeletesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.usecase.Register(ctx, RegisterInput{AccessToken: "at"})
	be.Err(t, err, nil)
	id := session.Account.ID

	_, err = f.emails.InsertEmails(ctx, id, []*emaildomain.Email{
		testutil.Email(id, "m1", "t1", time.Now()),
	}, "")
	be.Err(t, err, nil)
	be.Err(t, f.usecase.RegisterDevice(ctx, id, "device-1", "pixel"), nil)
	be.Err(t, f.people.InsertContacts(ctx, id, []peopledomain.Contact{
		{ID: "people/1", Name: "Carol", EmailAddresses: []string{"carol@example.com"}},
	}), nil)

	be.Err(t, f.usecase.Remove(ctx, id), nil)

	be.Equal(t, f.sync.stopped, []string{id})
	count, _ := f.emails.Count(ctx, id)
	be.Equal(t, count, int64(0))
	tokens, _ := f.devices.GetTokensByAccountID(ctx, id)
	be.Equal(t, len(tokens), 0)
	contacts, _ := f.people.Count(ctx, id)
	be.Equal(t, contacts, int64(0))
	_, err = f.usecase.Get(ctx, id)
	be.Err(t, err, domain.ErrAccountNotFound)
	be.Equal(t, f.push.calls, 1)
}

func TestRemoveKeepsPushWhileAccountsRemain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.Account(t, f.db, "other", "other@example.com", 0)

	session, err := f.usecase.Register(ctx, RegisterInput{AccessToken: "at"})
	be.Err(t, err, nil)
	be.Err(t, f.usecase.Remove(ctx, session.Account.ID), nil)
	be.Equal(t, f.push.calls, 0)
}

func TestRemoveUnknownAccount(t *testing.T) {
	f := newFixture(t)
	err := f.usecase.Remove(context.Background(), "missing")
	be.Err(t, err, domain.ErrAccountNotFound)
	be.Equal(t, len(f.sync.stopped), 0)
}

func TestDeviceRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.Account(t, f.db, "a1", "a@example.com", 0)

	be.True(t, f.usecase.RegisterDevice(ctx, "a1", " ", "") != nil)
	be.Err(t, f.usecase.RegisterDevice(ctx, "a1", "tok", "web"), nil)
	tokens, _ := f.devices.GetTokensByAccountID(ctx, "a1")
	be.Equal(t, len(tokens), 1)

	be.Err(t, f.usecase.UnregisterDevice(ctx, "tok"), nil)
	tokens, _ = f.devices.GetTokensByAccountID(ctx, "a1")
	be.Equal(t, len(tokens), 0)
}

func TestProvidersCacheAndPersistRefresh(t *testing.T) {
	db := testutil.NewDB(t)
	accounts := repository.NewAccountRepository(db)
	testutil.Account(t, db, "a1", "a@example.com", 0)

	var builds int
	var refresh func(*oauth2.Token) error
	providers := NewProviders(accounts, func(_ context.Context, _ *oauth2.Token, onRefresh func(*oauth2.Token) error) (emaildomain.MailProvider, error) {
		builds++
		refresh = onRefresh
		return testutil.NewProvider(), nil
	}, logger.Discard())
	ctx := context.Background()

	p1, err := providers.ProviderFor(ctx, "a1")
	be.Err(t, err, nil)
	p2, err := providers.ProviderFor(ctx, "a1")
	be.Err(t, err, nil)
	be.True(t, p1 == p2)
	be.Equal(t, builds, 1)

	be.Err(t, refresh(&oauth2.Token{AccessToken: "fresh", Expiry: time.Now().Add(time.Hour)}), nil)
	acc, _ := accounts.FindByID(ctx, "a1")
	be.Equal(t, acc.AccessToken, "fresh")

	providers.Forget("a1")
	_, err = providers.ProviderFor(ctx, "a1")
	be.Err(t, err, nil)
	be.Equal(t, builds, 2)

	_, err = providers.ProviderFor(ctx, "missing")
	be.Err(t, err, domain.ErrAccountNotFound)
}

func TestProvidersFactoryError(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.Account(t, db, "a1", "a@example.com", 0)
	boom := errors.New("boom")
	providers := NewProviders(repository.NewAccountRepository(db), func(context.Context, *oauth2.Token, func(*oauth2.Token) error) (emaildomain.MailProvider, error) {
		return nil, boom
	}, logger.Discard())

	_, err := providers.ProviderFor(context.Background(), "a1")
	be.Err(t, err, boom)
}

func TestRegisterWithAuthorizationCode(t *testing.T) {
	f := newFixture(t)
	var codes []string
	uc := NewAccountUsecase(f.accounts, f.devices, f.emails, f.providers,
		func(_ context.Context, tok *oauth2.Token, _ func(*oauth2.Token) error) (emaildomain.MailProvider, error) {
			f.tokens = append(f.tokens, tok)
			return f.provider, nil
		}, f.sync, nil, Options{
			JWTSecret: "secret",
			Exchange: func(_ context.Context, code, redirect string) (*oauth2.Token, error) {
				codes = append(codes, code+"@"+redirect)
				return &oauth2.Token{AccessToken: "exchanged", RefreshToken: "refresh"}, nil
			},
		}, logger.Discard())

	session, err := uc.Register(context.Background(), RegisterInput{Code: "c1", RedirectURI: "http://app/cb"})
	be.Err(t, err, nil)
	be.Equal(t, codes, []string{"c1@http://app/cb"})
	be.Equal(t, f.tokens[0].AccessToken, "exchanged")

	stored, _ := f.accounts.FindByID(context.Background(), session.Account.ID)
	be.Equal(t, stored.RefreshToken, "refresh")

	_, err = f.usecase.Register(context.Background(), RegisterInput{Code: "c2"})
	be.True(t, err != nil)
}
