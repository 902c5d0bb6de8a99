package flow

import (
	"context"
	"sync"
)

// workerPool is a bounded goroutine pool for the parallel batch
// variants. Submission blocks when the pool is at capacity
// (backpressure) and respects context cancellation while waiting.
type workerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// newWorkerPool creates a pool with the given max concurrency.
func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		size = 1
	}
	return &workerPool{sem: make(chan struct{}, size)}
}

// submit enqueues fn, blocking until a slot is free or ctx is done.
func (p *workerPool) submit(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		fn()
	}()
	return nil
}

// wait blocks until all submitted work completes.
func (p *workerPool) wait() {
	p.wg.Wait()
}
