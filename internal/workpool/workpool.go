// Package workpool bounds how much blocking work (store I/O, image
// processing) runs at once. Callers wait for a slot with a deadline.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Do after Close has been called.
var ErrClosed = errors.New("workpool: closed")

// Pool bounds the number of tasks running at once.
type Pool struct {
	logger *slog.Logger
	sem    *semaphore.Weighted
	size   int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a pool running at most size tasks concurrently. A size below 1 means 1.
func New(logger *slog.Logger, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		logger: logger.With("component", "workpool"),
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
	}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int { return p.size }

// Do runs fn once a slot is free and waits for it. ctx bounds only the wait
// for a slot: once fn has started, Do returns fn's own result, so work that
// completed is never reported as cancelled. fn receives ctx and is expected
// to observe cancellation itself. A panic in fn is returned as an error.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()
	defer p.wg.Done()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	return p.run(ctx, fn)
}

// Close rejects new tasks and waits for running ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "task panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("workpool: task panicked: %v", r)
		}
	}()
	return fn(ctx)
}
