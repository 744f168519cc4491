package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize is the number of concurrently running summarizations.
const DefaultPoolSize = 2

// ErrPoolClosed is returned by Submit after Close has been called.
var ErrPoolClosed = errors.New("pool is closed")

// PanicError wraps a value recovered from a panicking unit of work.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Pool runs units of work on a fixed number of slots. Submissions beyond
// capacity queue; Submit never blocks on a free slot.
type Pool struct {
	sem     *semaphore.Weighted
	logger  logr.Logger
	metrics *Metrics

	// acquireCtx is cancelled only when Close gives up waiting, which fails
	// units still queued for a slot.
	acquireCtx context.Context
	cancel     context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the logger.
func WithPoolLogger(l logr.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// WithPoolMetrics sets the metrics sink.
func WithPoolMetrics(m *Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// NewPool creates a pool with size slots. A size below 1 uses DefaultPoolSize.
func NewPool(size int, opts ...PoolOption) *Pool {
	if size < 1 {
		size = DefaultPoolSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		sem:        semaphore.NewWeighted(int64(size)),
		logger:     logr.Discard(),
		acquireCtx: ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// track registers one pool-managed goroutine. It fails once the pool is closed.
func (p *Pool) track() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	return true
}

// Submit queues fn and returns its Future. fn receives a context that is never
// cancelled: submitted work has no timeout.
func (p *Pool) Submit(fn func(ctx context.Context) (TaskResult, error)) (*Future, error) {
	if !p.track() {
		return nil, ErrPoolClosed
	}
	f := &Future{pool: p, done: make(chan struct{})}
	p.metrics.queued(1)

	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.acquireCtx, 1); err != nil {
			p.metrics.queued(-1)
			f.complete(nil, fmt.Errorf("waiting for pool slot: %w", err))
			return
		}
		p.metrics.queued(-1)
		p.metrics.running(1)
		res, err := runUnit(logr.NewContext(context.Background(), p.logger), fn)
		p.metrics.running(-1)
		p.sem.Release(1)
		f.complete(res, err)
	}()
	return f, nil
}

func runUnit(ctx context.Context, fn func(ctx context.Context) (TaskResult, error)) (res TaskResult, err error) {
	defer func() {
		if v := recover(); v != nil {
			res, err = nil, &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

// Close stops accepting work and waits for queued units, running units and
// their callbacks. If ctx ends first, units still waiting for a slot are failed
// and Close returns ctx.Err() without waiting for running units.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

// Future is the pending outcome of a submitted unit of work.
type Future struct {
	pool *Pool
	done chan struct{}

	mu        sync.Mutex
	finished  bool
	result    TaskResult
	err       error
	callbacks []func(*Future)
}

// Done is closed when the unit of work has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result blocks until the unit finishes and returns its outcome.
func (f *Future) Result() (TaskResult, error) {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

// AddDoneCallback registers cb to run once the unit has finished, whether it
// succeeded or failed. Callbacks run on pool goroutines; a panicking callback is
// recovered and logged.
func (f *Future) AddDoneCallback(cb func(*Future)) {
	f.mu.Lock()
	if !f.finished {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	if f.pool.track() {
		go func() {
			defer f.pool.wg.Done()
			f.pool.invoke(cb, f)
		}()
		return
	}
	f.pool.invoke(cb, f)
}

func (f *Future) complete(res TaskResult, err error) {
	f.mu.Lock()
	f.result, f.err, f.finished = res, err, true
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range cbs {
		f.pool.invoke(cb, f)
	}
}

func (p *Pool) invoke(cb func(*Future), f *Future) {
	defer func() {
		if v := recover(); v != nil {
			p.logger.Error(&PanicError{Value: v, Stack: debug.Stack()}, "done callback panicked")
		}
	}()
	cb(f)
}
