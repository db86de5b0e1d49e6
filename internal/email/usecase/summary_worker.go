package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/email/repository"
	"github.com/usemox/mox/pkg/ai"
	"github.com/usemox/mox/pkg/events"
	"github.com/usemox/mox/pkg/sanitize"
)

// maxSummaryInput bounds the thread text sent to the model.
const maxSummaryInput = 5000

type summaryJob struct {
	accountID string
	threadID  string
}

// SummaryWorker generates thread summaries on demand and in the
// background for threads that receive unread mail.
type SummaryWorker struct {
	emails    repository.EmailRepository
	summaries repository.SummaryRepository
	llm       ai.Service
	bus       *events.Bus
	logger    *slog.Logger

	jobs        chan summaryJob
	workerCount int
	wg          sync.WaitGroup
	mu          sync.Mutex
	started     bool
	unsubscribe func()
}

func NewSummaryWorker(
	emails repository.EmailRepository,
	summaries repository.SummaryRepository,
	llm ai.Service,
	bus *events.Bus,
	workerCount int,
	logger *slog.Logger,
) *SummaryWorker {
	if workerCount <= 0 {
		workerCount = 3
	}
	return &SummaryWorker{
		emails:      emails,
		summaries:   summaries,
		llm:         llm,
		bus:         bus,
		logger:      logger.With("component", "summary_worker"),
		jobs:        make(chan summaryJob, 500),
		workerCount: workerCount,
	}
}

// Start launches the workers and queues threads of newly stored unread mail.
func (s *SummaryWorker) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	if s.bus != nil {
		s.unsubscribe = events.Subscribe(s.bus, events.NewEmailsTopic, func(ev events.NewEmailsEvent) {
			seen := make(map[string]struct{})
			for _, e := range ev.Emails {
				if !e.Unread {
					continue
				}
				if _, ok := seen[e.ThreadID]; ok {
					continue
				}
				seen[e.ThreadID] = struct{}{}
				s.Queue(ev.AccountID, e.ThreadID)
			}
		})
	}
	s.logger.Info("Summary workers started", "workers", s.workerCount)
}

// Stop drains the queue and waits for the workers.
func (s *SummaryWorker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	close(s.jobs)
	s.wg.Wait()
	s.started = false
	s.logger.Info("Summary workers stopped")
}

// Queue adds a thread without blocking; it reports false when the queue
// is full or the worker is stopped.
func (s *SummaryWorker) Queue(accountID, threadID string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case s.jobs <- summaryJob{accountID: accountID, threadID: threadID}:
		return true
	default:
		return false
	}
}

// QueueThreads returns the cached summaries among threadIDs and queues the
// rest. Results of queued threads arrive as SummaryReady events.
func (s *SummaryWorker) QueueThreads(ctx context.Context, accountID string, threadIDs []string) (map[string]string, int, error) {
	cached, err := s.summaries.GetSummaries(ctx, accountID, threadIDs)
	if err != nil {
		return nil, 0, err
	}
	queued := 0
	for _, id := range threadIDs {
		if _, ok := cached[id]; ok {
			continue
		}
		if s.Queue(accountID, id) {
			queued++
		}
	}
	return cached, queued, nil
}

func (s *SummaryWorker) worker(ctx context.Context) {
	defer s.wg.Done()
	for job := range s.jobs {
		if ctx.Err() != nil {
			continue
		}
		if _, err := s.ThreadSummary(ctx, job.accountID, job.threadID); err != nil {
			s.logger.Error("Failed to summarize thread", "account_id", job.accountID, "thread_id", job.threadID, "error", err)
		}
	}
}

// ThreadSummary returns the cached summary or generates and caches it.
func (s *SummaryWorker) ThreadSummary(ctx context.Context, accountID, threadID string) (string, error) {
	cached, err := s.summaries.GetSummary(ctx, accountID, threadID)
	if err != nil {
		return "", err
	}
	if cached != nil {
		return cached.Summary, nil
	}

	thread, err := s.emails.GetThread(ctx, accountID, threadID)
	if err != nil {
		return "", err
	}
	if len(thread) == 0 {
		return "", domain.ErrEmailNotFound
	}

	summary, err := s.llm.SummarizeEmail(ctx, threadText(thread))
	if err != nil {
		return "", fmt.Errorf("summarize thread: %w", err)
	}
	summary = strings.TrimSpace(summary)

	if err := s.summaries.SaveSummary(ctx, accountID, threadID, summary); err != nil {
		return "", err
	}
	events.Publish(s.bus, events.SummaryReadyTopic, events.SummaryReadyEvent{
		AccountID: accountID,
		ThreadID:  threadID,
		Summary:   summary,
	})
	return summary, nil
}

func threadText(thread []*domain.Email) string {
	var b strings.Builder
	for i, e := range thread {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "From: %s\n", e.From)
		var html, plain string
		if e.Body != nil {
			html, plain = e.Body.HTML, e.Body.Plain
		}
		text := sanitize.EmailText(e.Subject, html, plain)
		if text == "" {
			text = e.Snippet
		}
		b.WriteString(text)
	}
	out := b.String()
	if len(out) > maxSummaryInput {
		out = strings.ToValidUTF8(out[:maxSummaryInput], "")
	}
	return out
}
