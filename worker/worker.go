// Package worker runs submitted tasks on a fixed set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// ErrClosed is returned by Submit once the pool has been closed.
var ErrClosed = errors.New("worker: pool closed")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Task is a unit of work. The context is cancelled when the pool closes;
// tasks still queued at that point run once with the cancelled context so
// they can report it.
type Task func(ctx context.Context)

// Config holds the configuration for a Pool.
type Config struct {
	Workers   int
	QueueSize int
	Logger    Logger
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return errors.New("config: Workers must be greater than 0")
	}
	if c.QueueSize < 0 {
		return errors.New("config: QueueSize must not be negative")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Pool is a bounded goroutine pool.
type Pool struct {
	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger Logger

	// mu orders Submit against Close so no task lands in the queue after it
	// has been drained.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// New starts cfg.Workers goroutines bound to ctx. Cancelling ctx has the same
// effect on running tasks as Close, but only Close waits for them.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		tasks:  make(chan Task, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: cfg.Logger,
	}

	p.wg.Add(cfg.Workers)
	for i := range cfg.Workers {
		go p.loop(i)
	}
	p.logger.Debug("worker pool started", "workers", cfg.Workers, "queue_size", cfg.QueueSize)
	return p, nil
}

func (p *Pool) loop(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.tasks:
			p.run(id, task)
		}
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panicked",
				"worker", id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	task(p.ctx)
}

// Submit queues task, blocking while the queue is full. It returns ctx's
// error if ctx ends first and ErrClosed if the pool is closed.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return errors.New("worker: nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case <-p.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.tasks <- task:
		return nil
	}
}

// Close stops the workers and waits for running tasks to return. Tasks left
// in the queue are run inline with the cancelled context.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.wg.Wait()

		drained := 0
		for {
			select {
			case task := <-p.tasks:
				p.run(-1, task)
				drained++
			default:
				p.logger.Debug("worker pool closed", "drained", drained)
				return
			}
		}
	})
}
