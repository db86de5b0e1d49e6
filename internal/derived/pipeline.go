// Package derived computes data derived from stored emails: vector
// embeddings and the results of extraction stages.
package derived

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/email/repository"
	"github.com/usemox/mox/pkg/ai"
	"github.com/usemox/mox/pkg/batch"
	"github.com/usemox/mox/pkg/sanitize"
)

// failedResult is stored for a stage that returned an error.
var failedResult = json.RawMessage(`{"error":"Processing failed"}`)

// VectorMirror receives every stored embedding, e.g. a Chroma collection.
type VectorMirror interface {
	Upsert(ctx context.Context, accountID, emailID string, vector []float32) error
}

type Options struct {
	BatchSize         int
	ConcurrentBatches int
	QueueSize         int
	Workers           int
	// Dimensions rejects vectors of another length when non-zero.
	Dimensions int
}

// Pipeline runs the embedding step then the stage step over emails.
type Pipeline struct {
	embedder   ai.Embedder
	embeddings repository.EmbeddingRepository
	results    repository.MiddlewareResultRepository
	mirror     VectorMirror
	registry   *Registry
	opts       Options
	logger     *slog.Logger

	queue chan []*domain.Email
	wg    sync.WaitGroup
	once  sync.Once
}

func NewPipeline(
	embedder ai.Embedder,
	embeddings repository.EmbeddingRepository,
	results repository.MiddlewareResultRepository,
	registry *Registry,
	opts Options,
	logger *slog.Logger,
) *Pipeline {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Pipeline{
		embedder:   embedder,
		embeddings: embeddings,
		results:    results,
		registry:   registry,
		opts:       opts,
		logger:     logger.With("component", "derived"),
		queue:      make(chan []*domain.Email, opts.QueueSize),
	}
}

// SetMirror attaches an optional external vector index.
func (p *Pipeline) SetMirror(m VectorMirror) {
	p.mirror = m
}

// Start launches the queue workers. They exit when ctx is done or the
// pipeline is closed.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case emails, ok := <-p.queue:
					if !ok {
						return
					}
					p.Process(ctx, emails)
				}
			}
		}()
	}
}

// Close stops accepting work and waits for queued work to drain.
func (p *Pipeline) Close() {
	p.once.Do(func() { close(p.queue) })
	p.wg.Wait()
}

// Dispatch enqueues the emails that carry a body without waiting for them
// to be processed. A full queue drops the work.
func (p *Pipeline) Dispatch(emails []*domain.Email) {
	var withBody []*domain.Email
	for _, e := range emails {
		if e != nil && e.HasBody() {
			withBody = append(withBody, e)
		}
	}
	if len(withBody) == 0 {
		return
	}

	defer func() {
		// send on a closed queue during shutdown
		if recover() != nil {
			p.logger.Warn("Derived pipeline closed, dropping emails", "count", len(withBody))
		}
	}()
	select {
	case p.queue <- withBody:
	default:
		p.logger.Warn("Derived queue full, dropping emails", "count", len(withBody))
	}
}

func (p *Pipeline) batchOptions(step string) batch.Options[*domain.Email, string] {
	return batch.Options[*domain.Email, string]{
		BatchSize:         p.opts.BatchSize,
		ConcurrentBatches: p.opts.ConcurrentBatches,
		OnBatchComplete: func(done []string, idx int) {
			p.logger.Debug("Derived batch complete", "step", step, "batch", idx, "processed", len(done))
		},
		OnItemError: func(err error, e *domain.Email, idx int) {
			p.logger.Error("Derived step failed", "step", step, "email_id", e.ID, "index", idx, "error", err)
		},
	}
}

// Process runs both steps over emails and returns once they finish.
func (p *Pipeline) Process(ctx context.Context, emails []*domain.Email) {
	if len(emails) == 0 {
		return
	}
	embedded := batch.Process(ctx, emails, p.embed, p.batchOptions("embedding"))
	processed := batch.Process(ctx, emails, p.runStages, p.batchOptions("middleware"))
	p.logger.Info("Derived data processed", "emails", len(emails), "embedded", len(embedded), "middleware", len(processed))
}

func input(e *domain.Email) Input {
	in := Input{AccountID: e.AccountID, EmailID: e.ID, Subject: e.Subject}
	if e.Body != nil {
		in.HTML = e.Body.HTML
		in.Plain = e.Body.Plain
	}
	in.Text = sanitize.EmailText(in.Subject, in.HTML, in.Plain)
	return in
}

// embed returns an empty id when there was nothing to embed.
func (p *Pipeline) embed(ctx context.Context, e *domain.Email) (string, error) {
	text := input(e).Text
	if text == "" {
		return "", nil
	}

	vector, err := p.embedder.EmbedText(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embed: %w", err)
	}
	if len(vector) == 0 {
		return "", nil
	}
	if p.opts.Dimensions > 0 && len(vector) != p.opts.Dimensions {
		return "", fmt.Errorf("embedding has %d dimensions, want %d", len(vector), p.opts.Dimensions)
	}

	if err := p.embeddings.Upsert(ctx, e.AccountID, e.ID, vector); err != nil {
		return "", fmt.Errorf("store embedding: %w", err)
	}
	if p.mirror != nil {
		if err := p.mirror.Upsert(ctx, e.AccountID, e.ID, vector); err != nil {
			p.logger.Warn("Vector mirror upsert failed", "email_id", e.ID, "error", err)
		}
	}
	return e.ID, nil
}

// runStages runs every stage concurrently on one email. A failing stage
// records a failure result for itself only.
func (p *Pipeline) runStages(ctx context.Context, e *domain.Email) (string, error) {
	in := input(e)
	stages := p.registry.Stages()

	var wg sync.WaitGroup
	errs := make([]error, len(stages))
	for i, stage := range stages {
		wg.Add(1)
		go func(i int, stage Stage) {
			defer wg.Done()
			errs[i] = p.runStage(ctx, stage, in)
		}(i, stage)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return "", err
		}
	}
	return e.ID, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, in Input) error {
	result, err := safeProcess(ctx, stage, in)
	if err != nil {
		p.logger.Error("Middleware stage failed", "stage", stage.Name(), "email_id", in.EmailID, "error", err)
		result = failedResult
	}
	if saveErr := p.results.Save(ctx, stage.Name(), in.EmailID, result); saveErr != nil {
		return fmt.Errorf("save %s result: %w", stage.Name(), saveErr)
	}
	return nil
}

func safeProcess(ctx context.Context, stage Stage, in Input) (out json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.Name(), r)
		}
	}()
	out, err = stage.Process(ctx, in)
	if err == nil && !json.Valid(out) {
		err = fmt.Errorf("stage %s returned invalid JSON", stage.Name())
	}
	return out, err
}
