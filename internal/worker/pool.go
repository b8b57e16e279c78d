// Package worker runs accepted background jobs on a fixed set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/Domenick1991/flightservice/internal/metrics"
	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueFull = errors.New("worker queue is full")
	ErrStopped   = errors.New("worker pool is stopped")
)

// Job is one unit of background work. Recover is called instead of
// returning normally when the job panics.
type Job struct {
	Name    string
	Run     func(ctx context.Context)
	Recover func(ctx context.Context, panicValue any)
}

type task struct {
	ctx context.Context
	job Job
}

type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

type Pool struct {
	cfg     Config
	queue   chan task
	metrics *metrics.Metrics

	// mu orders enqueues against the shutdown drain: once stopped is set
	// under the write lock, no task can land in queue behind the drain.
	mu      sync.RWMutex
	stopped bool
}

func NewPool(cfg Config, m *metrics.Metrics) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers
	}
	return &Pool{
		cfg:     cfg,
		queue:   make(chan task, cfg.QueueSize),
		metrics: m,
	}
}

// Submit queues job without waiting. The job's context keeps ctx's values
// but not its cancellation, so a finished HTTP request does not abort it.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return domain.External("background processing unavailable", ErrStopped)
	}
	select {
	case p.queue <- task{ctx: context.WithoutCancel(ctx), job: job}:
		p.metrics.SetQueueDepth(len(p.queue))
		return nil
	default:
		return domain.External("too many purchases in progress, try again later", ErrQueueFull)
	}
}

// Run starts the workers and blocks until ctx is done. Jobs still queued at
// that point are executed before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case t := <-p.queue:
					p.metrics.SetQueueDepth(len(p.queue))
					p.execute(t)
				}
			}
		})
	}
	err := g.Wait()

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	for {
		select {
		case t := <-p.queue:
			p.execute(t)
		default:
			p.metrics.SetQueueDepth(0)
			return err
		}
	}
}

func (p *Pool) Pending() int {
	return len(p.queue)
}

func (p *Pool) execute(t task) {
	ctx := t.ctx
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).
				WithField("job", t.job.Name).
				WithField("stack", string(debug.Stack())).
				Error(fmt.Sprintf("job panicked: %v", r))
			if t.job.Recover != nil {
				t.job.Recover(ctx, r)
			}
		}
	}()
	t.job.Run(ctx)
}
