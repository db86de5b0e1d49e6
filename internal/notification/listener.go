// Package notification reacts to mailbox change pushes and fans new-mail
// events out to devices and chats.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-playground/validator/v10"
	accountdomain "github.com/usemox/mox/internal/account/domain"
	accountrepo "github.com/usemox/mox/internal/account/repository"
	"github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/email/usecase"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var ErrInvalidPayload = errors.New("invalid push payload")

// Payload is the change notification the provider publishes.
type Payload struct {
	EmailAddress string `json:"emailAddress" validate:"required,email"`
	HistoryID    uint64 `json:"historyId" validate:"required,gt=0"`
}

type Options struct {
	// Topic is the full topic name, projects/<project>/topics/<id>.
	Topic        string
	Subscription string
	// OwnSubscription deletes the subscription on Teardown.
	OwnSubscription bool
}

// Listener applies provider change history for pushed notifications.
type Listener struct {
	client    *pubsub.Client
	accounts  accountrepo.AccountRepository
	providers domain.ProviderResolver
	ingest    usecase.IngestUsecase
	validate  *validator.Validate
	opts      Options
	logger    *slog.Logger

	locks keyedMutex

	mu      sync.Mutex
	seq     uint64
	cancels map[string]map[uint64]context.CancelFunc
}

// NewPubSubClient connects to Pub/Sub with an optional credentials file.
func NewPubSubClient(ctx context.Context, projectID, credentialsFile string) (*pubsub.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return client, nil
}

// NewListener builds a listener. client may be nil, in which case Run
// returns at once and only HandlePayload is usable.
func NewListener(
	client *pubsub.Client,
	accounts accountrepo.AccountRepository,
	providers domain.ProviderResolver,
	ingest usecase.IngestUsecase,
	opts Options,
	logger *slog.Logger,
) *Listener {
	if opts.Subscription == "" && opts.Topic != "" {
		opts.Subscription = resourceID(opts.Topic) + "-sub"
	}
	return &Listener{
		client:    client,
		accounts:  accounts,
		providers: providers,
		ingest:    ingest,
		validate:  validator.New(),
		opts:      opts,
		logger:    logger.With("component", "push"),
		locks:     keyedMutex{locks: make(map[string]*keyedLock)},
		cancels:   make(map[string]map[uint64]context.CancelFunc),
	}
}

func resourceID(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Run receives notifications until ctx is done. Every message is acked,
// whatever the outcome, since reconciliation is driven by the watermark
// and not by redelivery.
func (l *Listener) Run(ctx context.Context) error {
	if l.client == nil || l.opts.Topic == "" {
		l.logger.Info("Push listener disabled")
		return nil
	}

	sub, err := l.ensureSubscription(ctx)
	if err != nil {
		return err
	}

	l.logger.Info("Listening for change notifications", "subscription", l.opts.Subscription)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := l.HandlePayload(ctx, msg.Data); err != nil {
			l.logger.Warn("Dropped notification", "message_id", msg.ID, "error", err)
		}
		msg.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive notifications: %w", err)
	}
	return nil
}

func (l *Listener) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	topicID := resourceID(l.opts.Topic)
	topic, err := l.client.CreateTopic(ctx, topicID)
	if err != nil {
		if status.Code(err) != codes.AlreadyExists {
			return nil, fmt.Errorf("create topic %s: %w", topicID, err)
		}
		topic = l.client.Topic(topicID)
	}

	sub, err := l.client.CreateSubscription(ctx, l.opts.Subscription, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	if err != nil {
		if status.Code(err) != codes.AlreadyExists {
			return nil, fmt.Errorf("create subscription %s: %w", l.opts.Subscription, err)
		}
		sub = l.client.Subscription(l.opts.Subscription)
	}
	return sub, nil
}

// Teardown removes the subscription when this process owns it.
func (l *Listener) Teardown(ctx context.Context) error {
	if l.client == nil || !l.opts.OwnSubscription || l.opts.Subscription == "" {
		return nil
	}
	err := l.client.Subscription(l.opts.Subscription).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("delete subscription: %w", err)
	}
	l.logger.Info("Subscription deleted", "subscription", l.opts.Subscription)
	return nil
}

// Close releases the Pub/Sub client.
func (l *Listener) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

// HandlePayload decodes one notification and reconciles the account.
func (l *Listener) HandlePayload(ctx context.Context, data []byte) error {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := l.validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	acc, err := l.accounts.FindByEmail(ctx, p.EmailAddress)
	if err != nil {
		return err
	}
	if acc == nil {
		return fmt.Errorf("%w: %s", accountdomain.ErrAccountNotFound, p.EmailAddress)
	}
	return l.reconcile(ctx, acc.ID, p.HistoryID)
}

// reconcile applies history between the stored watermark and historyID.
// Runs for one account are serialized.
func (l *Listener) reconcile(ctx context.Context, accountID string, historyID uint64) error {
	unlock := l.locks.Lock(accountID)
	defer unlock()

	ctx, done := l.track(ctx, accountID)
	defer done()

	acc, err := l.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acc == nil {
		return accountdomain.ErrAccountNotFound
	}

	log := l.logger.With("account_id", accountID, "history_id", historyID)
	if acc.HistoryID == 0 {
		log.Debug("No history baseline yet, skipping")
		return nil
	}
	if historyID <= acc.HistoryID {
		log.Debug("Notification already applied", "stored", acc.HistoryID)
		return nil
	}

	provider, err := l.providers.ProviderFor(ctx, accountID)
	if err != nil {
		return err
	}

	it := provider.ListHistory(ctx, acc.HistoryID)
	for {
		batch, err := it.Next(ctx)
		if errors.Is(err, iterator.Done) {
			break
		}
		if errors.Is(err, domain.ErrHistoryExpired) {
			log.Warn("History expired, skipping to notification watermark", "stored", acc.HistoryID)
			return l.advance(ctx, accountID, historyID)
		}
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}

		if _, err := l.ingest.InsertEmails(ctx, accountID, batch.Added); err != nil {
			return err
		}
		if err := l.ingest.DeleteEmails(ctx, batch.RemovedIDs); err != nil {
			return err
		}
		if err := l.advance(ctx, accountID, batch.HistoryID); err != nil {
			return err
		}
		log.Debug("Applied history page", "added", len(batch.Added), "removed", len(batch.RemovedIDs), "page_history_id", batch.HistoryID)
	}

	return l.advance(ctx, accountID, historyID)
}

func (l *Listener) advance(ctx context.Context, accountID string, historyID uint64) error {
	if historyID == 0 {
		return nil
	}
	if _, err := l.accounts.AdvanceHistoryID(ctx, accountID, historyID); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return nil
}

// track registers a cancellable context for CancelAccount.
func (l *Listener) track(ctx context.Context, accountID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	l.seq++
	id := l.seq
	if l.cancels[accountID] == nil {
		l.cancels[accountID] = make(map[uint64]context.CancelFunc)
	}
	l.cancels[accountID][id] = cancel
	l.mu.Unlock()

	return ctx, func() {
		l.mu.Lock()
		delete(l.cancels[accountID], id)
		if len(l.cancels[accountID]) == 0 {
			delete(l.cancels, accountID)
		}
		l.mu.Unlock()
		cancel()
	}
}

// CancelAccount aborts the account's in-flight reconciliation.
func (l *Listener) CancelAccount(accountID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, cancel := range l.cancels[accountID] {
		cancel()
	}
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets unused keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyedLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		k.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
