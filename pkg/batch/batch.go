// Package batch runs a worker over many items in fixed-size batches with
// bounded concurrency and per-item failure isolation.
package batch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize         = 10
	DefaultConcurrentBatches = 1
)

// Options tunes Process. Zero values select the defaults.
type Options[T, R any] struct {
	BatchSize         int
	ConcurrentBatches int
	// OnBatchComplete receives the successful results of one batch in item order.
	OnBatchComplete func(results []R, batchIndex int)
	// OnItemError receives a failed item and its index in the original slice.
	OnItemError func(err error, item T, index int)
}

type slot[R any] struct {
	val R
	ok  bool
}

// Process partitions items into batches of BatchSize and runs up to
// ConcurrentBatches batches at a time; items inside a batch run concurrently.
// Failed items are reported through OnItemError and left out of the result.
// Successful results are returned in input order. Callbacks never run
// concurrently with each other.
func Process[T, R any](ctx context.Context, items []T, worker func(context.Context, T) (R, error), opts Options[T, R]) []R {
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	concurrent := opts.ConcurrentBatches
	if concurrent <= 0 {
		concurrent = DefaultConcurrentBatches
	}

	var cbMu sync.Mutex
	reportErr := func(err error, item T, index int) {
		if opts.OnItemError == nil {
			return
		}
		cbMu.Lock()
		defer cbMu.Unlock()
		opts.OnItemError(err, item, index)
	}

	batchCount := (len(items) + size - 1) / size
	perBatch := make([][]R, batchCount)

	var g errgroup.Group
	g.SetLimit(concurrent)

	for b := 0; b < batchCount; b++ {
		start := b * size
		end := min(start+size, len(items))
		chunk := items[start:end]

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				for i, item := range chunk {
					reportErr(err, item, start+i)
				}
				return nil
			}

			slots := make([]slot[R], len(chunk))
			var wg sync.WaitGroup
			for i, item := range chunk {
				wg.Add(1)
				go func() {
					defer wg.Done()
					val, err := run(ctx, worker, item)
					if err != nil {
						reportErr(err, item, start+i)
						return
					}
					slots[i] = slot[R]{val: val, ok: true}
				}()
			}
			wg.Wait()

			results := make([]R, 0, len(chunk))
			for _, s := range slots {
				if s.ok {
					results = append(results, s.val)
				}
			}
			perBatch[b] = results

			if opts.OnBatchComplete != nil {
				cbMu.Lock()
				opts.OnBatchComplete(results, b)
				cbMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []R
	for _, results := range perBatch {
		out = append(out, results...)
	}
	return out
}

func run[T, R any](ctx context.Context, worker func(context.Context, T) (R, error), item T) (val R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return worker(ctx, item)
}
