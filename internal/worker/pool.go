package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Job is a unit of retryable background work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// PoolConfig sizes the pool and its retry policy.
type PoolConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	RetryBase   time.Duration
}

// Pool runs jobs on a fixed set of goroutines, retrying failures with exponential backoff.
type Pool struct {
	cfg    PoolConfig
	logger *zap.Logger
	jobs   chan Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts the workers.
func NewPool(cfg PoolConfig, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan Job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.loop()
	}
	return p
}

// Submit enqueues a job, waiting for queue space until ctx is done.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch hands job to the pool without waiting. When the queue is full the
// job runs on its own goroutine, still with retries and panic recovery, and
// Close waits for it like any queued job.
func (p *Pool) Dispatch(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
	}
	p.logger.Warn("job queue full, running detached", zap.String("job", job.Name))
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(job)
	}()
	return nil
}

// Close stops intake, lets queued jobs finish, and waits for the workers.
// Jobs still backing off when ctx expires are abandoned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
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
		<-done
		return ctx.Err()
	}
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *Pool) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", zap.String("job", job.Name), zap.Any("panic", r))
		}
	}()

	delay := p.cfg.RetryBase
	for attempt := 1; ; attempt++ {
		err := job.Run(p.ctx)
		if err == nil {
			return
		}
		if attempt >= p.cfg.MaxAttempts || p.ctx.Err() != nil {
			p.logger.Error("job failed",
				zap.String("job", job.Name),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return
		}
		p.logger.Warn("job failed, retrying",
			zap.String("job", job.Name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-p.ctx.Done():
			timer.Stop()
		}
		delay *= 2
	}
}
