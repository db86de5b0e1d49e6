package mailsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nalgeon/be"
	accountrepo "github.com/usemox/mox/internal/account/repository"
	"github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/email/repository"
	"github.com/usemox/mox/internal/email/usecase"
	"github.com/usemox/mox/internal/testutil"
	"github.com/usemox/mox/pkg/events"
	"github.com/usemox/mox/pkg/logger"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type dispatchRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (d *dispatchRecorder) Dispatch(emails []*domain.Email) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range emails {
		d.ids = append(d.ids, e.ID)
	}
}

func (d *dispatchRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ids)
}

type fixture struct {
	provider   *testutil.Provider
	derived    *dispatchRecorder
	emails     repository.EmailRepository
	syncStates repository.SyncStateRepository
	accounts   accountrepo.AccountRepository
	bus        *events.Bus
	orch       *Orchestrator
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.Account(t, db, "acc", "me@example.com", 0)

	f := &fixture{
		provider:   testutil.NewProvider(),
		emails:     repository.NewEmailRepository(db),
		syncStates: repository.NewSyncStateRepository(db),
		accounts:   accountrepo.NewAccountRepository(db),
		bus:        events.NewBus(logger.Discard()),
		derived:    &dispatchRecorder{},
	}
	ingest := usecase.NewIngestUsecase(f.emails, f.accounts, f.bus, f.derived, nil, logger.Discard())
	f.orch = NewOrchestrator(testutil.Resolver{"acc": f.provider}, f.syncStates, f.emails, f.accounts,
		ingest, f.bus, opts, logger.Discard())
	return f
}

// page builds n emails numbered from start, one day apart going back.
func page(prefix string, start, n int) []*domain.Email {
	emails := make([]*domain.Email, n)
	for i := range emails {
		id := fmt.Sprintf("%s%02d", prefix, start+i)
		emails[i] = testutil.Email("acc", id, "t-"+id, base.Add(-time.Duration(start+i)*time.Hour))
	}
	return emails
}

func drain[T any](ch <-chan T) []T {
	var out []T
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestInitialSyncTwoPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.provider.Pages[""] = &domain.EmailPage{Emails: page("m", 0, 10), NextPageToken: "p2"}
	f.provider.Pages["p2"] = &domain.EmailPage{Emails: page("m", 10, 10)}
	status, unsub := events.Chan(f.bus, events.SyncStatusTopic, 16)
	defer unsub()

	be.Err(t, f.orch.Start(ctx, "acc"), nil)

	n, err := f.emails.Count(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, n, int64(20))

	state, err := f.syncStates.Get(ctx, "acc")
	be.Err(t, err, nil)
	be.True(t, state.InitialSyncComplete)
	be.True(t, !state.SyncInProgress)
	be.Equal(t, state.LastSyncPageToken, "")
	be.True(t, state.LastSyncDate != nil)

	evs := drain(status)
	be.Equal(t, len(evs), 2)
	be.Equal(t, evs[0].Status, events.StatusStarted)
	be.Equal(t, evs[1].Status, events.StatusCompleted)
	be.Equal(t, evs[1].Kind, events.SyncInitial)
	be.Equal(t, evs[1].Error, "")

	calls := f.provider.ListCalls()
	be.Equal(t, len(calls), 2)
	be.Equal(t, calls[1].PageToken, "p2")

	// every new email is handed to derived processing exactly once
	be.Equal(t, f.derived.count(), 20)

	// the catch-up run lists the same mail again and stores nothing new
	be.Err(t, f.orch.Start(ctx, "acc"), nil)
	be.True(t, len(f.provider.ListCalls()) > 2)
	be.Equal(t, f.derived.count(), 20)
	n, err = f.emails.Count(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, n, int64(20))
}

func TestInitialSyncResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.provider.Pages[""] = &domain.EmailPage{Emails: page("m", 0, 10), NextPageToken: "p2"}
	f.provider.Pages["p2"] = &domain.EmailPage{Emails: page("m", 10, 10)}
	f.provider.SincePages = map[string]*domain.EmailPage{}
	f.provider.Fail("p2", errors.New("backend error"))

	err := f.orch.Start(ctx, "acc")
	be.True(t, err != nil)

	state, err := f.syncStates.Get(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, state.LastSyncPageToken, "p2")
	be.True(t, !state.InitialSyncComplete)
	be.True(t, !state.SyncInProgress)

	f.provider.Fail("p2", nil)
	be.Err(t, f.orch.Start(ctx, "acc"), nil)

	calls := f.provider.ListCalls()
	be.Equal(t, len(calls), 4)
	// incremental catch-up runs first, then the backfill resumes at p2
	be.True(t, calls[2].Since != nil)
	be.True(t, calls[2].Since.Equal(base))
	be.Equal(t, calls[3].PageToken, "p2")
	be.True(t, calls[3].Since == nil)

	n, err := f.emails.Count(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, n, int64(20))
	state, err = f.syncStates.Get(ctx, "acc")
	be.Err(t, err, nil)
	be.True(t, state.InitialSyncComplete)
}

func TestIncrementalSyncAfterInitialComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.provider.Pages[""] = &domain.EmailPage{Emails: page("m", 0, 3)}
	be.Err(t, f.orch.Start(ctx, "acc"), nil)

	fresh := testutil.Email("acc", "new", "t-new", base.Add(time.Hour))
	f.provider.SincePages = map[string]*domain.EmailPage{"": {Emails: []*domain.Email{fresh}}}
	be.Err(t, f.orch.Start(ctx, "acc"), nil)

	calls := f.provider.ListCalls()
	be.Equal(t, len(calls), 2)
	be.True(t, calls[1].Since != nil)

	n, err := f.emails.Count(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, n, int64(4))
}

func TestStartIsIdempotentAndStopInterrupts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{PageDelay: time.Hour})
	f.provider.Pages[""] = &domain.EmailPage{Emails: page("m", 0, 10), NextPageToken: "p2"}
	f.provider.Pages["p2"] = &domain.EmailPage{Emails: page("m", 10, 10)}
	states, unsub := events.Chan(f.bus, events.StateChangedTopic, 16)
	defer unsub()

	done := make(chan error, 1)
	go func() { done <- f.orch.Start(ctx, "acc") }()

	deadline := time.After(2 * time.Second)
	for syncing := false; !syncing; {
		select {
		case ev := <-states:
			syncing = ev.State == string(StateInitialSyncing)
		case <-deadline:
			t.Fatal("initial sync did not start")
		}
	}

	be.Err(t, f.orch.Start(ctx, "acc"), nil)

	// wait for the first page to commit before stopping
	for {
		n, err := f.emails.Count(ctx, "acc")
		be.Err(t, err, nil)
		if n == 10 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first page was not stored")
		case <-time.After(10 * time.Millisecond):
		}
	}

	f.orch.Stop(ctx, "acc")
	select {
	case err := <-done:
		be.Err(t, err, nil)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not interrupt the page wait")
	}

	be.Equal(t, len(f.provider.ListCalls()), 1)
	state, err := f.syncStates.Get(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, state.LastSyncPageToken, "p2")
	be.True(t, !state.SyncInProgress)

	status, err := f.orch.Status(ctx, "acc")
	be.Err(t, err, nil)
	be.True(t, !status.Running)
	be.Equal(t, status.State, StateIdle)
}

func TestStopBeforeStartIsSafe(t *testing.T) {
	f := newFixture(t, Options{})
	f.orch.Stop(context.Background(), "acc")
	f.orch.Stop(context.Background(), "unknown")
}

func TestWatchSeedsWatermark(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{WatchTopic: "projects/p/topics/mail"})
	f.provider.WatchHistoryID = 900

	be.Err(t, f.orch.Start(ctx, "acc"), nil)

	acc, err := f.accounts.FindByID(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, acc.HistoryID, uint64(900))

	status, err := f.orch.Status(ctx, "acc")
	be.Err(t, err, nil)
	be.True(t, status.Listening)

	f.orch.Stop(ctx, "acc")
	be.Equal(t, f.provider.StoppedWatches, 1)
	status, err = f.orch.Status(ctx, "acc")
	be.Err(t, err, nil)
	be.True(t, !status.Listening)
}

func TestWatchFailureDoesNotBlockSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{WatchTopic: "projects/p/topics/mail"})
	f.provider.WatchErr = errors.New("permission denied")
	f.provider.Pages[""] = &domain.EmailPage{Emails: page("m", 0, 2)}

	be.Err(t, f.orch.Start(ctx, "acc"), nil)

	n, err := f.emails.Count(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, n, int64(2))
	status, err := f.orch.Status(ctx, "acc")
	be.Err(t, err, nil)
	be.True(t, !status.Listening)
}

type cancelRecorder struct{ ids []string }

func (c *cancelRecorder) CancelAccount(accountID string) { c.ids = append(c.ids, accountID) }

func TestStopCancelsPushReconciliation(t *testing.T) {
	f := newFixture(t, Options{})
	c := &cancelRecorder{}
	f.orch.SetCanceler(c)
	f.orch.Stop(context.Background(), "acc")
	be.Equal(t, c.ids, []string{"acc"})
}

func TestUnknownAccountFails(t *testing.T) {
	f := newFixture(t, Options{})
	err := f.orch.Start(context.Background(), "ghost")
	be.True(t, err != nil)

	status, err := f.orch.Status(context.Background(), "ghost")
	be.Err(t, err, nil)
	be.Equal(t, status.State, StateIdle)
}

func TestStartAsyncRunsInBackground(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.provider.Pages[""] = &domain.EmailPage{Emails: page("m", 0, 3)}

	f.orch.StartAsync("acc")
	f.orch.StartAsync("ghost")
	f.orch.Wait()

	n, err := f.emails.Count(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, n, int64(3))
}

type contactRecorder struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (c *contactRecorder) SyncContacts(_ context.Context, accountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, accountID)
	return c.err
}

func TestStartSyncsContactsAfterMail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.provider.Pages[""] = &domain.EmailPage{Emails: page("m", 0, 2)}
	contacts := &contactRecorder{}
	f.orch.SetContactSyncer(contacts)

	be.Err(t, f.orch.Start(ctx, "acc"), nil)
	be.Equal(t, contacts.ids, []string{"acc"})

	// a contact failure does not fail the sync
	contacts.err = errors.New("insufficient permissions")
	be.Err(t, f.orch.Start(ctx, "acc"), nil)
	be.Equal(t, contacts.ids, []string{"acc", "acc"})
}

func TestFailedMailSyncSkipsContacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.provider.ListErr = errors.New("backend error")
	contacts := &contactRecorder{}
	f.orch.SetContactSyncer(contacts)

	be.True(t, f.orch.Start(ctx, "acc") != nil)
	be.Equal(t, len(contacts.ids), 0)
}
