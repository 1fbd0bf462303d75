// Package async runs requests on a bounded set of workers so slow
// conversions and summarization calls do not pile up unbounded goroutines.
package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
	"github.com/ironsheep/cad-analyzer-mcp/internal/metrics"
)

// ErrClosed is returned by Do after Shutdown.
var ErrClosed = errors.New("worker pool is shutting down")

type job struct {
	ctx  context.Context
	name string
	fn   func(ctx context.Context) error
	done chan error
}

// Pool is a fixed set of workers fed by a bounded queue.
type Pool struct {
	logger  *zap.Logger
	workers int
	timeout time.Duration

	ch   chan job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan job, n)
		}
	}
}

// WithProcessTimeout bounds each job. Zero leaves jobs bounded only by the
// caller's context.
func WithProcessTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d >= 0 {
			p.timeout = d
		}
	}
}

func NewPool(logger *zap.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		logger:  logger,
		workers: 4,
		timeout: 10 * time.Minute,
		ch:      make(chan job, 64),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Debug("worker started", zap.Int("worker_id", workerID))

				for j := range p.ch {
					metrics.QueueDepth.Dec()
					j.done <- p.run(workerID, j)
				}

				p.logger.Debug("worker stopped", zap.Int("worker_id", workerID))
			}(i + 1)
		}
	})
}

func (p *Pool) run(workerID int, j job) (err error) {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	ctx := j.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", zap.Int("worker_id", workerID), zap.String("job", j.name), zap.Any("panic", r))
			err = common.NewAppError("INTERNAL_ERROR", fmt.Sprintf("job %s panicked: %v", j.name, r), nil)
		}
	}()
	return j.fn(ctx)
}

// Do queues fn and waits for it to finish. It returns fn's error, ErrClosed
// after Shutdown, or ctx's error if ctx ends while the job is still queued.
// A full queue applies backpressure: Do blocks until there is room.
func (p *Pool) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	j := job{ctx: ctx, name: name, fn: fn, done: make(chan error, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		p.logger.Warn("cannot enqueue: pool is shutting down", zap.String("job", name))
		return ErrClosed
	}
	select {
	case p.ch <- j:
		metrics.QueueDepth.Inc()
	default:
		p.logger.Warn("queue full, applying backpressure", zap.String("job", name))
		select {
		case p.ch <- j:
			metrics.QueueDepth.Inc()
		case <-ctx.Done():
			p.mu.RUnlock()
			return ctx.Err()
		}
	}
	p.mu.RUnlock()

	return <-j.done
}

// Shutdown stops accepting jobs and waits for queued ones to drain or for
// ctx to end.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
	case <-done:
		p.logger.Info("queue drained, shutdown complete")
	}
}
