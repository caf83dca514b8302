// Package downloadqueue implements the Download Queue (spec section 4.5):
// a bounded-concurrency fetch queue keyed by a caller-chosen string (the
// DELTA loop uses the item id, not the remote path), producing
// memoized futures the DELTA processing loop can wait on in list order.
// Grounded on the teacher's worker-pool pattern (internal/sync/worker.go)
// and bounded-concurrency scheduling via golang.org/x/sync, generalized
// from a fixed work-item ledger to an open-ended keyed push/wait queue.
package downloadqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Result is what WaitForResult returns for a given key.
type Result struct {
	Value []byte
	Err   error
}

// FetchFunc performs the actual fetch for a key (typically
// fileapi.Client.Get against a remote path).
type FetchFunc func(ctx context.Context) ([]byte, error)

// Queue is a bounded-concurrency, keyed, memoized fetch queue. Jobs start
// eagerly on Push; results are memoized per key until consumed, and
// remain available after Stop so in-flight fetches are never wasted.
type Queue struct {
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu      sync.Mutex
	futures map[string]*future
	stopped bool
	wg      sync.WaitGroup
}

type future struct {
	done chan struct{}
	res  Result
}

// New returns a Queue allowing up to maxConcurrent fetches in flight.
func New(maxConcurrent int, logger *slog.Logger) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		logger:  logger,
		futures: make(map[string]*future),
	}
}

// Push schedules fn under key if not already scheduled or completed.
// Pushing the same key twice before it is consumed is a no-op: the
// first fetch's result will satisfy both callers.
func (q *Queue) Push(ctx context.Context, key string, fn FetchFunc) {
	q.mu.Lock()
	if _, exists := q.futures[key]; exists || q.stopped {
		q.mu.Unlock()
		return
	}

	f := &future{done: make(chan struct{})}
	q.futures[key] = f
	q.mu.Unlock()

	q.wg.Add(1)

	go func() {
		defer q.wg.Done()
		defer close(f.done)

		if err := q.sem.Acquire(ctx, 1); err != nil {
			f.res = Result{Err: fmt.Errorf("downloadqueue: acquire slot for %s: %w", key, err)}
			return
		}
		defer q.sem.Release(1)

		q.logger.Debug("fetching", slog.String("key", key))

		value, err := fn(ctx)
		f.res = Result{Value: value, Err: err}
	}()
}

// WaitForResult blocks until key's fetch completes and returns its
// result. Returns an error if key was never pushed.
func (q *Queue) WaitForResult(ctx context.Context, key string) (Result, error) {
	q.mu.Lock()
	f, ok := q.futures[key]
	q.mu.Unlock()

	if !ok {
		return Result{}, fmt.Errorf("downloadqueue: no job pushed for key %s", key)
	}

	select {
	case <-f.done:
		return f.res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Stop halts scheduling of new jobs. Already-issued fetches run to
// completion; their results remain retrievable via WaitForResult.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
}

// Wait blocks until all in-flight fetches (all pushed before Stop; a
// Push after Stop schedules nothing) have completed. Used by tests and by callers that
// want a clean shutdown point.
func (q *Queue) Wait() {
	q.wg.Wait()
}
