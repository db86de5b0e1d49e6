// Package mailsync drives backfill and catch-up of remote mailboxes into
// the local store.
package mailsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	accountrepo "github.com/usemox/mox/internal/account/repository"
	"github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/email/repository"
	"github.com/usemox/mox/internal/email/usecase"
	"github.com/usemox/mox/pkg/events"
)

type State string

const (
	StateIdle               State = "idle"
	StateInitializing       State = "initializing"
	StateInitialSyncing     State = "initial_syncing"
	StateIncrementalSyncing State = "incremental_syncing"
)

// Canceler aborts in-flight push reconciliation for an account.
type Canceler interface {
	CancelAccount(accountID string)
}

// ContactSyncer mirrors the address book of an account.
type ContactSyncer interface {
	SyncContacts(ctx context.Context, accountID string) error
}

type Options struct {
	PageSize  int64
	PageDelay time.Duration
	// WatchTopic is the Pub/Sub topic the provider publishes changes to.
	// An empty topic disables the change watch.
	WatchTopic         string
	WatchRenewInterval time.Duration
}

// Status is the observable sync state of one account.
type Status struct {
	AccountID string            `json:"account_id"`
	State     State             `json:"state"`
	Running   bool              `json:"running"`
	Listening bool              `json:"listening"`
	Progress  *domain.SyncState `json:"progress,omitempty"`
}

type run struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func (r *run) halt() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *run) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// Orchestrator runs at most one sync per account at a time.
type Orchestrator struct {
	providers  domain.ProviderResolver
	syncStates repository.SyncStateRepository
	emails     repository.EmailRepository
	accounts   accountrepo.AccountRepository
	ingest     usecase.IngestUsecase
	bus        *events.Bus
	canceler   Canceler
	contacts   ContactSyncer
	opts       Options
	logger     *slog.Logger

	background sync.WaitGroup

	mu        sync.Mutex
	runs      map[string]*run
	states    map[string]State
	listeners map[string]context.CancelFunc
}

func NewOrchestrator(
	providers domain.ProviderResolver,
	syncStates repository.SyncStateRepository,
	emails repository.EmailRepository,
	accounts accountrepo.AccountRepository,
	ingest usecase.IngestUsecase,
	bus *events.Bus,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.PageDelay < 0 {
		opts.PageDelay = 0
	}
	return &Orchestrator{
		providers:  providers,
		syncStates: syncStates,
		emails:     emails,
		accounts:   accounts,
		ingest:     ingest,
		bus:        bus,
		opts:       opts,
		logger:     logger.With("component", "mailsync"),
		runs:       make(map[string]*run),
		states:     make(map[string]State),
		listeners:  make(map[string]context.CancelFunc),
	}
}

// SetCanceler wires the push listener so Stop can abort its work.
func (o *Orchestrator) SetCanceler(c Canceler) {
	o.canceler = c
}

// SetContactSyncer makes Start refresh contacts after the mail sync.
func (o *Orchestrator) SetContactSyncer(c ContactSyncer) {
	o.contacts = c
}

// Start syncs the account and returns when the run is over. A call while
// a run for the account is active returns nil at once.
func (o *Orchestrator) Start(ctx context.Context, accountID string) error {
	o.mu.Lock()
	if _, active := o.runs[accountID]; active {
		o.mu.Unlock()
		return nil
	}
	r := &run{stop: make(chan struct{})}
	o.runs[accountID] = r
	o.mu.Unlock()

	defer o.finish(accountID, r)
	log := o.logger.With("account_id", accountID)

	o.setState(accountID, StateInitializing)
	provider, err := o.providers.ProviderFor(ctx, accountID)
	if err != nil {
		log.Error("Failed to resolve mailbox client", "error", err)
		return fmt.Errorf("resolve provider: %w", err)
	}

	o.watch(ctx, accountID, provider)

	state, err := o.syncStates.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load sync state: %w", err)
	}
	newest, err := o.emails.NewestEmailDate(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load newest email date: %w", err)
	}

	if newest != nil {
		if err := o.incrementalSync(ctx, accountID, r, provider, *newest); err != nil {
			return err
		}
	}

	if state == nil || !state.InitialSyncComplete {
		resumeFrom := ""
		if state != nil {
			resumeFrom = state.LastSyncPageToken
		}
		if err := o.initialSync(ctx, accountID, r, provider, resumeFrom); err != nil {
			return err
		}
	}

	if o.contacts != nil && !r.stopped() {
		if err := o.contacts.SyncContacts(ctx, accountID); err != nil {
			log.Warn("Contact sync failed", "error", err)
		}
	}
	return nil
}

// StartAsync runs Start in its own goroutine. The run ends through Stop
// or StopAll, not through a request context.
func (o *Orchestrator) StartAsync(accountID string) {
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		if err := o.Start(context.Background(), accountID); err != nil {
			o.logger.Error("Sync failed", "account_id", accountID, "error", err)
		}
	}()
}

// Wait blocks until every StartAsync run has returned.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

func (o *Orchestrator) finish(accountID string, r *run) {
	o.mu.Lock()
	if o.runs[accountID] == r {
		delete(o.runs, accountID)
	}
	o.mu.Unlock()
	o.setState(accountID, StateIdle)
}

// Stop ends the account's run at the next page boundary and tears down
// its change watch. It is safe to call when nothing runs.
func (o *Orchestrator) Stop(ctx context.Context, accountID string) {
	o.mu.Lock()
	r := o.runs[accountID]
	delete(o.runs, accountID)
	cancelListen := o.listeners[accountID]
	delete(o.listeners, accountID)
	o.mu.Unlock()

	if r != nil {
		r.halt()
	}
	if cancelListen != nil {
		cancelListen()
	}
	o.publishState(accountID)

	if err := o.syncStates.ResetInProgress(ctx, accountID); err != nil {
		o.logger.Warn("Failed to reset sync flag", "account_id", accountID, "error", err)
	}
	if provider, err := o.providers.ProviderFor(ctx, accountID); err == nil {
		if err := provider.StopChangeWatch(ctx); err != nil {
			o.logger.Warn("Failed to stop change watch", "account_id", accountID, "error", err)
		}
	}
	if o.canceler != nil {
		o.canceler.CancelAccount(accountID)
	}
	o.logger.Info("Sync stopped", "account_id", accountID)
}

// StopAll stops every account that has a run or a watch.
func (o *Orchestrator) StopAll(ctx context.Context) {
	o.mu.Lock()
	ids := make(map[string]struct{})
	for id := range o.runs {
		ids[id] = struct{}{}
	}
	for id := range o.listeners {
		ids[id] = struct{}{}
	}
	o.mu.Unlock()

	for id := range ids {
		o.Stop(ctx, id)
	}
}

func (o *Orchestrator) Status(ctx context.Context, accountID string) (*Status, error) {
	progress, err := o.syncStates.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	_, running := o.runs[accountID]
	_, listening := o.listeners[accountID]
	state, ok := o.states[accountID]
	if !ok {
		state = StateIdle
	}
	return &Status{
		AccountID: accountID,
		State:     state,
		Running:   running,
		Listening: listening,
		Progress:  progress,
	}, nil
}

func (o *Orchestrator) setState(accountID string, state State) {
	o.mu.Lock()
	o.states[accountID] = state
	o.mu.Unlock()
	o.publishState(accountID)
}

func (o *Orchestrator) publishState(accountID string) {
	o.mu.Lock()
	state, ok := o.states[accountID]
	if !ok {
		state = StateIdle
	}
	_, listening := o.listeners[accountID]
	o.mu.Unlock()

	events.Publish(o.bus, events.StateChangedTopic, events.StateChangedEvent{
		AccountID: accountID,
		State:     string(state),
		Listening: listening,
		At:        time.Now(),
	})
}

// watch registers the provider change watch and keeps it renewed. A
// failure only disables push for this run.
func (o *Orchestrator) watch(ctx context.Context, accountID string, provider domain.MailProvider) {
	if o.opts.WatchTopic == "" {
		return
	}
	if err := o.registerWatch(ctx, accountID, provider); err != nil {
		o.logger.Warn("Failed to register change watch, continuing without push", "account_id", accountID, "error", err)
		return
	}

	o.mu.Lock()
	if _, ok := o.listeners[accountID]; ok {
		o.mu.Unlock()
		return
	}
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.listeners[accountID] = cancel
	o.mu.Unlock()
	o.publishState(accountID)

	if o.opts.WatchRenewInterval > 0 {
		go o.renewWatch(lctx, accountID, provider)
	}
}

func (o *Orchestrator) registerWatch(ctx context.Context, accountID string, provider domain.MailProvider) error {
	resp, err := provider.RegisterChangeWatch(ctx, o.opts.WatchTopic)
	if err != nil {
		return err
	}
	if resp.HistoryID > 0 {
		if _, err := o.accounts.AdvanceHistoryID(ctx, accountID, resp.HistoryID); err != nil {
			return fmt.Errorf("seed history watermark: %w", err)
		}
	}
	o.logger.Info("Change watch registered", "account_id", accountID, "history_id", resp.HistoryID, "expires", resp.Expiration)
	return nil
}

func (o *Orchestrator) renewWatch(ctx context.Context, accountID string, provider domain.MailProvider) {
	ticker := time.NewTicker(o.opts.WatchRenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.registerWatch(ctx, accountID, provider); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Warn("Failed to renew change watch", "account_id", accountID, "error", err)
			}
		}
	}
}

// wait sleeps the inter-page delay. It reports false when the run was
// stopped or ctx ended first.
func (o *Orchestrator) wait(ctx context.Context, r *run) bool {
	if o.opts.PageDelay == 0 {
		return !r.stopped() && ctx.Err() == nil
	}
	timer := time.NewTimer(o.opts.PageDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) publishSync(accountID string, kind events.SyncKind, status events.SyncStatus, err error) {
	ev := events.SyncStatusEvent{AccountID: accountID, Kind: kind, Status: status, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	events.Publish(o.bus, events.SyncStatusTopic, ev)
}
