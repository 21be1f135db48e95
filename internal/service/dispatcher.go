package service

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/refund-authorization/internal/telemetry"
)

// Job is a side effect that runs after a transition has committed. Run may be
// called more than once, so it must be idempotent on Key.
type Job struct {
	Effect string
	Key    string
	Run    func(ctx context.Context) error
}

// Scheduler accepts side-effect jobs without blocking the caller.
type Scheduler interface {
	Submit(job Job) bool
}

type DispatcherConfig struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 10 * time.Second
	}
	return c
}

// Dispatcher runs side effects on a fixed worker pool, retrying failures with
// exponential backoff. A failed side effect never touches refund state.
type Dispatcher struct {
	cfg    DispatcherConfig
	logger *zap.Logger
	jobs   chan Job
	quit   chan struct{}
	wg     sync.WaitGroup

	// ctx is cancelled on Stop so retry waits end early.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	stopped bool

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewDispatcher(cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = telemetry.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan Job, cfg.QueueSize),
		quit:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
	})
}

// Submit enqueues job. It returns false when the dispatcher is stopped or the
// queue is full; the job is then dropped and logged.
func (d *Dispatcher) Submit(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.drop(job, "Side effect dropped, dispatcher stopped")
		return false
	}

	select {
	case d.jobs <- job:
		return true
	default:
		d.drop(job, "Side effect dropped, queue full")
		return false
	}
}

// Stop signals workers to exit and waits for in-flight jobs or ctx expiry.
// Jobs still queued are never run; each one is logged at error level so it
// can be reconciled by hand.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()
		close(d.quit)
		d.cancel()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.drain()
		return nil
	case <-ctx.Done():
		d.drain()
		return ctx.Err()
	}
}

// drain empties the queue after Stop. No Submit can enqueue once stopped is
// set, so the loop terminates.
func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.jobs:
			d.drop(job, "Side effect dropped at shutdown")
		default:
			return
		}
	}
}

func (d *Dispatcher) drop(job Job, msg string) {
	d.logger.Error(msg, zap.String("effect", job.Effect), zap.String("key", job.Key))
	telemetry.RecordSideEffectFailure(job.Effect)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.quit:
			return
		default:
		}

		select {
		case <-d.quit:
			return
		case job := <-d.jobs:
			d.run(job)
		}
	}
}

func (d *Dispatcher) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.BaseBackoff
	b.MaxInterval = d.cfg.MaxBackoff
	// attempts are bounded by WithMaxRetries, not by elapsed time
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.cfg.MaxAttempts-1)), d.ctx)
}

func (d *Dispatcher) run(job Job) {
	attempt := 0
	operation := func() error {
		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.AttemptTimeout)
		defer cancel()

		err := job.Run(ctx)
		if err != nil {
			telemetry.RecordSideEffectFailure(job.Effect)
			d.logger.Warn("Side effect attempt failed",
				zap.String("effect", job.Effect),
				zap.String("key", job.Key),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	}

	err := backoff.Retry(operation, d.newBackOff())
	switch {
	case err == nil:
		return
	case d.ctx.Err() != nil:
		d.logger.Error("Side effect abandoned on shutdown",
			zap.String("effect", job.Effect),
			zap.String("key", job.Key),
			zap.Int("attempts", attempt),
		)
	default:
		d.logger.Error("Side effect abandoned after retries",
			zap.String("effect", job.Effect),
			zap.String("key", job.Key),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
	}
}
