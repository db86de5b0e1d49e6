package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/email/repository"
	"github.com/usemox/mox/internal/testutil"
	"github.com/usemox/mox/pkg/ai"
	"github.com/usemox/mox/pkg/events"
	"github.com/usemox/mox/pkg/logger"
)

type summarizer struct {
	mu     sync.Mutex
	inputs []string
}

func (s *summarizer) SummarizeEmail(_ context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, text)
	return " A short summary. ", nil
}

func (s *summarizer) ExtractStructured(context.Context, ai.StructuredRequest) (json.RawMessage, error) {
	return nil, nil
}

func (s *summarizer) AnswerQuestion(context.Context, string, []string) (string, error) {
	return "", nil
}

func (s *summarizer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

func TestThreadSummaryIsCachedUntilNewMail(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)
	llm := &summarizer{}
	w := NewSummaryWorker(f.emails, repository.NewSummaryRepository(f.db), llm, f.bus, 1, logger.Discard())
	ready, unsub := events.Chan(f.bus, events.SummaryReadyTopic, 4)
	defer unsub()

	_, err := f.ingest.InsertEmails(ctx, "acc", []*domain.Email{testutil.Email("acc", "m1", "t1", base)})
	be.Err(t, err, nil)

	summary, err := w.ThreadSummary(ctx, "acc", "t1")
	be.Err(t, err, nil)
	be.Equal(t, summary, "A short summary.")
	be.True(t, strings.Contains(llm.inputs[0], "Hello from m1"))
	be.Equal(t, (<-ready).ThreadID, "t1")

	_, err = w.ThreadSummary(ctx, "acc", "t1")
	be.Err(t, err, nil)
	be.Equal(t, llm.calls(), 1)

	// a new message in the thread drops the cached summary
	_, err = f.ingest.InsertEmails(ctx, "acc", []*domain.Email{testutil.Email("acc", "m2", "t1", base.Add(time.Hour))})
	be.Err(t, err, nil)
	_, err = w.ThreadSummary(ctx, "acc", "t1")
	be.Err(t, err, nil)
	be.Equal(t, llm.calls(), 2)

	_, err = w.ThreadSummary(ctx, "acc", "unknown")
	be.Err(t, err, domain.ErrEmailNotFound)
}

func TestSummaryWorkerQueuesUnreadThreads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newIngestFixture(t)
	llm := &summarizer{}
	w := NewSummaryWorker(f.emails, repository.NewSummaryRepository(f.db), llm, f.bus, 1, logger.Discard())
	ready, unsub := events.Chan(f.bus, events.SummaryReadyTopic, 4)
	defer unsub()
	w.Start(ctx)
	defer w.Stop()

	read := testutil.Email("acc", "m2", "t2", base)
	read.Unread = false
	_, err := f.ingest.InsertEmails(ctx, "acc", []*domain.Email{testutil.Email("acc", "m1", "t1", base), read})
	be.Err(t, err, nil)

	select {
	case ev := <-ready:
		be.Equal(t, ev.ThreadID, "t1")
	case <-time.After(2 * time.Second):
		t.Fatal("summary was not generated")
	}
	be.Equal(t, llm.calls(), 1)
}

func TestQueueThreadsReturnsCachedAndQueuesRest(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)
	summaries := repository.NewSummaryRepository(f.db)
	w := NewSummaryWorker(f.emails, summaries, &summarizer{}, f.bus, 1, logger.Discard())

	_, err := f.ingest.InsertEmails(ctx, "acc", []*domain.Email{
		testutil.Email("acc", "m1", "t1", base),
		testutil.Email("acc", "m2", "t2", base),
	})
	be.Err(t, err, nil)
	be.Err(t, summaries.SaveSummary(ctx, "acc", "t1", "cached"), nil)

	// not started, so queued jobs stay in the buffer
	cached, queued, err := w.QueueThreads(ctx, "acc", []string{"t1", "t2"})
	be.Err(t, err, nil)
	be.Equal(t, cached, map[string]string{"t1": "cached"})
	be.Equal(t, queued, 1)

	cached, _, err = w.QueueThreads(ctx, "other", []string{"t1"})
	be.Err(t, err, nil)
	be.Equal(t, len(cached), 0)
}
