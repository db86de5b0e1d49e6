// Package app builds every component from configuration and owns their
// lifecycle.
package app

import (
	"context"
	"log/slog"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	accountrepo "github.com/usemox/mox/internal/account/repository"
	accountusecase "github.com/usemox/mox/internal/account/usecase"
	actionrepo "github.com/usemox/mox/internal/actionitem/repository"
	"github.com/usemox/mox/internal/actionitem/scheduler"
	actionusecase "github.com/usemox/mox/internal/actionitem/usecase"
	"github.com/usemox/mox/internal/derived"
	emaildomain "github.com/usemox/mox/internal/email/domain"
	emailrepo "github.com/usemox/mox/internal/email/repository"
	emailusecase "github.com/usemox/mox/internal/email/usecase"
	"github.com/usemox/mox/internal/mailsync"
	"github.com/usemox/mox/internal/notification"
	peoplerepo "github.com/usemox/mox/internal/people/repository"
	peopleusecase "github.com/usemox/mox/internal/people/usecase"
	"github.com/usemox/mox/internal/search"
	"github.com/usemox/mox/pkg/ai"
	"github.com/usemox/mox/pkg/chroma"
	"github.com/usemox/mox/pkg/config"
	"github.com/usemox/mox/pkg/events"
	"github.com/usemox/mox/pkg/fcm"
	"github.com/usemox/mox/pkg/gemini"
	"github.com/usemox/mox/pkg/gmail"
	"github.com/usemox/mox/pkg/telegram"
)

// Container holds the process-wide components. Nothing here is a global.
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *gorm.DB
	Bus    *events.Bus

	AISettings *ai.Settings
	LLM        ai.Service
	Ollama     *ai.OllamaService

	Accounts    accountusecase.AccountUsecase
	Mailbox     emailusecase.MailboxUsecase
	Ingest      emailusecase.IngestUsecase
	Summaries   *emailusecase.SummaryWorker
	ActionItems actionusecase.ActionItemUsecase
	Sync        *mailsync.Orchestrator
	Listener    *notification.Listener
	Search      *search.Service
	People      peopleusecase.PeopleUsecase

	accountRepo accountrepo.AccountRepository
	pipeline    *derived.Pipeline
	fanout      *notification.Fanout
	reminders   *scheduler.ReminderScheduler
	index       *chroma.Index

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
}

// New wires the components. Optional integrations that fail to initialize
// are logged and left out.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *slog.Logger) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Bus:    events.NewBus(logger),
	}

	accounts := accountrepo.NewAccountRepository(db)
	devices := accountrepo.NewDeviceRepository(db)
	emails := emailrepo.NewEmailRepository(db)
	syncStates := emailrepo.NewSyncStateRepository(db)
	summaries := emailrepo.NewSummaryRepository(db)
	embeddings := emailrepo.NewEmbeddingRepository(db)
	results := emailrepo.NewMiddlewareResultRepository(db)
	actionItems := actionrepo.NewActionItemRepository(db)
	c.accountRepo = accounts

	// AI
	c.AISettings = ai.NewSettings(ai.ParseProvider(cfg.AIProvider), cfg.OllamaBaseURL, cfg.OllamaModel)
	c.Ollama = ai.NewOllamaFromSettings(c.AISettings, cfg.OllamaEmbedModel)
	var geminiSvc ai.Service
	if cfg.GeminiAPIKey != "" {
		geminiSvc = gemini.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	c.LLM = ai.NewRouter(c.AISettings, geminiSvc, c.Ollama, logger)
	logger.Info("AI service initialized", "provider", c.AISettings.Provider(), "gemini", geminiSvc != nil)

	var embedder ai.Embedder = c.Ollama
	var geminiEmbedder *chroma.GeminiEmbedder
	if cfg.GeminiAPIKey != "" {
		ge, err := chroma.NewGeminiEmbedder(cfg.GeminiAPIKey, cfg.GeminiEmbedModel)
		if err != nil {
			logger.Warn("Gemini embeddings unavailable, using Ollama", "error", err)
		} else {
			geminiEmbedder = ge
			embedder = ge
		}
	}

	// Vector store: the local table always, Chroma as an optional mirror
	var index search.VectorIndex = embeddings
	var vectors emailusecase.VectorDeleter
	if cfg.ChromaURL != "" {
		idx, err := chroma.NewIndex(ctx, cfg.ChromaURL, cfg.ChromaCollection, chromaFunction(geminiEmbedder), logger)
		if err != nil {
			logger.Warn("Chroma unavailable, searching the local index", "error", err)
		} else {
			c.index = idx
			index = idx
			vectors = idx
		}
	}

	// Derived data
	registry := derived.NewRegistry(
		derived.NewOTPStage(c.LLM),
		derived.NewActionItemStage(c.LLM, actionItems),
	)
	c.pipeline = derived.NewPipeline(embedder, embeddings, results, registry, derived.Options{
		BatchSize:         cfg.DerivedBatchSize,
		ConcurrentBatches: cfg.DerivedConcurrentBatches,
		QueueSize:         cfg.DerivedQueueSize,
		Workers:           cfg.DerivedWorkers,
		Dimensions:        cfg.EmbeddingDimensions,
	}, logger)
	if c.index != nil {
		c.pipeline.SetMirror(c.index)
	}

	// Mailbox access
	gmailSvc := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, logger)
	factory := func(ctx context.Context, tok *oauth2.Token, onRefresh func(*oauth2.Token) error) (emaildomain.MailProvider, error) {
		client, err := gmailSvc.NewClient(ctx, tok, onRefresh)
		if err != nil {
			return nil, err
		}
		client.SetHistoryPageDelay(cfg.HistoryPageDelay)
		return client, nil
	}
	providers := accountusecase.NewProviders(accounts, factory, logger)

	c.Ingest = emailusecase.NewIngestUsecase(emails, accounts, c.Bus, c.pipeline, vectors, logger)
	c.Mailbox = emailusecase.NewMailboxUsecase(emails, results, providers, c.Ingest, "", logger)
	c.Summaries = emailusecase.NewSummaryWorker(emails, summaries, c.LLM, c.Bus, cfg.SummaryWorkers, logger)
	c.ActionItems = actionusecase.NewActionItemUsecase(actionItems)
	c.Search = search.NewService(embedder, index, emails, c.LLM, logger)

	// Sync and push
	syncOpts := mailsync.Options{
		PageSize:           cfg.SyncPageSize,
		PageDelay:          cfg.SyncPageDelay,
		WatchRenewInterval: cfg.WatchRenewInterval,
	}
	listenerOpts := notification.Options{}
	var psClient *pubsub.Client
	if cfg.PushEnabled() {
		syncOpts.WatchTopic = cfg.TopicPath()
		listenerOpts = notification.Options{
			Topic:           cfg.TopicPath(),
			Subscription:    cfg.GooglePubSubSub,
			OwnSubscription: cfg.DeleteSubOnShutdown,
		}
		client, err := notification.NewPubSubClient(ctx, cfg.GoogleProjectID, cfg.GoogleCredentials)
		if err != nil {
			logger.Warn("Pub/Sub unavailable, push changes only via POST /api/push", "error", err)
		} else {
			psClient = client
		}
	} else {
		logger.Warn("GOOGLE_PROJECT_ID not configured, push notifications disabled")
	}
	c.Sync = mailsync.NewOrchestrator(providers, syncStates, emails, accounts, c.Ingest, c.Bus, syncOpts, logger)
	c.Listener = notification.NewListener(psClient, accounts, providers, c.Ingest, listenerOpts, logger)
	c.Sync.SetCanceler(c.Listener)

	people := peoplerepo.NewPeopleRepository(db)
	c.People = peopleusecase.NewPeopleUsecase(people, providers, logger)
	c.Sync.SetContactSyncer(c.People)

	c.Accounts = accountusecase.NewAccountUsecase(accounts, devices, emails, providers, factory, c.Sync, c.Listener,
		accountusecase.Options{
			JWTSecret: cfg.JWTSecret,
			JWTTTL:    cfg.JWTTTL,
			Exchange:  gmailSvc.Exchange,
			Contacts:  people,
		}, logger)

	// New-mail notifications
	var pusher notification.DevicePusher
	if cfg.FirebaseCredentials != "" {
		client, err := fcm.NewClient(ctx, cfg.FirebaseCredentials, logger)
		if err != nil {
			logger.Warn("Failed to initialize FCM client, push notifications disabled", "error", err)
		} else {
			pusher = client
			c.reminders = scheduler.NewReminderScheduler(actionItems, devices, client, cfg.ReminderInterval, logger)
		}
	}
	var chat notification.ChatNotifier
	if cfg.TelegramEnabled() {
		n, err := telegram.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Warn("Failed to initialize Telegram notifier", "error", err)
		} else {
			chat = n
		}
	}
	if pusher != nil || chat != nil {
		c.fanout = notification.NewFanout(accounts, devices, pusher, chat, logger)
	}

	return c, nil
}

// chromaFunction attaches the Gemini embedding function to the collection
// when Gemini produces the vectors.
func chromaFunction(ge *chroma.GeminiEmbedder) embeddings.EmbeddingFunction {
	if ge == nil {
		return nil
	}
	return ge.Function()
}

// Start launches the background workers and resumes sync of every stored
// account.
func (c *Container) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	c.pipeline.Start(ctx)
	c.Summaries.Start(ctx)
	if c.reminders != nil {
		c.reminders.Start(ctx)
	}
	if c.fanout != nil {
		c.unsubscribe = c.fanout.Subscribe(ctx, c.Bus)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Listener.Run(ctx); err != nil {
			c.Logger.Error("Push listener stopped", "error", err)
		}
	}()

	accounts, err := c.accountRepo.List(ctx)
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		c.Sync.StartAsync(acc.ID)
	}
	c.Logger.Info("Background services started", "accounts", len(accounts))
	return nil
}

// Shutdown stops sync runs, then the workers and the listener.
func (c *Container) Shutdown(ctx context.Context) {
	c.Sync.StopAll(ctx)
	c.Sync.Wait()

	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if err := c.Listener.Teardown(ctx); err != nil {
		c.Logger.Warn("Failed to delete subscription", "error", err)
	}
	if err := c.Listener.Close(); err != nil {
		c.Logger.Warn("Failed to close Pub/Sub client", "error", err)
	}

	c.pipeline.Close()
	c.Summaries.Stop()
	if c.reminders != nil {
		c.reminders.Stop()
	}
	if c.index != nil {
		if err := c.index.Close(); err != nil {
			c.Logger.Warn("Failed to close Chroma client", "error", err)
		}
	}
	c.Logger.Info("Background services stopped")
}
