package workerpool

import (
	"context"
	"errors"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Pool is a bounded goroutine pool built on ants. It is used for fan-out
// work where one task's failure must not affect its siblings, such as
// embedding the chunks of a document in parallel.
type Pool struct {
	inner  *ants.Pool
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a pool with the given number of workers.
func New(size int, log *zap.Logger) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	inner, err := ants.NewPool(size, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}

	return &Pool{inner: inner, logger: log}, nil
}

// Submit schedules a task, blocking while all workers are busy.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.mu.Unlock()

	return p.inner.Submit(task)
}

// Map runs fn for every index in [0, n) across the pool and waits for all
// of them. A cancelled context stops scheduling new tasks; tasks already
// running are left to finish. fn must handle its own panics and errors.
func (p *Pool) Map(ctx context.Context, n int, fn func(i int)) error {
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		default:
		}

		i := i
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			fn(i)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}

	wg.Wait()
	return nil
}

// Running returns the number of busy workers.
func (p *Pool) Running() int {
	return p.inner.Running()
}

// Release shuts the pool down.
func (p *Pool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.inner.Release()
	if p.logger != nil {
		p.logger.Debug("worker pool released", zap.Int("running", p.inner.Running()))
	}
}
