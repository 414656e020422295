package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	apperrors "github.com/Jlypx/BetterForward-enhance/internal/errors"
	"github.com/Jlypx/BetterForward-enhance/internal/metrics"
	"github.com/Jlypx/BetterForward-enhance/internal/model"
)

// Handler runs one job to completion. It must honour ctx cancellation.
type Handler func(ctx context.Context, job model.Job)

// AbandonFunc records a job that will never finish normally: it was still
// queued when shutdown ran out of time, or its handler panicked.
type AbandonFunc func(job model.Job, reason error)

// Pool runs jobs with at most size handlers in flight. Jobs that share a key
// are run one at a time in submission order; each key with pending work owns
// a single drain goroutine that exits once its queue is empty.
type Pool struct {
	size    int
	handle  Handler
	abandon AbandonFunc
	sem     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[string]*keyQueue
	closed bool
	wg     sync.WaitGroup
}

type keyQueue struct {
	jobs []model.Job
}

func NewPool(size int, handle Handler, abandon AbandonFunc) *Pool {
	if size < 1 {
		size = 1
	}
	if abandon == nil {
		abandon = func(model.Job, error) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		size:    size,
		handle:  handle,
		abandon: abandon,
		sem:     make(chan struct{}, size),
		ctx:     ctx,
		cancel:  cancel,
		queues:  make(map[string]*keyQueue),
	}
}

func (p *Pool) Size() int {
	return p.size
}

// Submit queues a job without blocking. After Shutdown has started it
// returns a SHUTTING_DOWN error.
func (p *Pool) Submit(job model.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		metrics.IncJobRejected()
		return apperrors.ShuttingDown()
	}

	q, ok := p.queues[job.Key]
	if !ok {
		q = &keyQueue{}
		p.queues[job.Key] = q
		p.wg.Add(1)
		metrics.AddActiveKeys(1)
		go p.drain(job.Key, q)
	}
	q.jobs = append(q.jobs, job)

	metrics.AddQueueDepth(1)
	metrics.IncJobSubmitted(string(job.Direction))
	return nil
}

// Pending returns the number of jobs queued but not yet started.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, q := range p.queues {
		n += len(q.jobs)
	}
	return n
}

func (p *Pool) drain(key string, q *keyQueue) {
	defer p.wg.Done()
	defer metrics.AddActiveKeys(-1)

	for {
		job, ok := p.next(key, q)
		if !ok {
			return
		}

		if !p.acquire() {
			p.abandonQueue(key, q, job)
			return
		}

		func() {
			defer func() { <-p.sem }()
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("jobId", job.ID).
						Str("key", key).
						Msg("relay job panicked")
					p.abandon(job, fmt.Errorf("handler panicked: %v", r))
				}
			}()
			p.handle(p.ctx, job)
		}()
	}
}

// acquire takes a worker slot. Cancellation wins over a free slot so nothing
// new starts once the pool has been cancelled.
func (p *Pool) acquire() bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case p.sem <- struct{}{}:
	case <-p.ctx.Done():
		return false
	}
	if p.ctx.Err() != nil {
		<-p.sem
		return false
	}
	return true
}

// next pops the head of the queue, or retires the queue when it is empty.
func (p *Pool) next(key string, q *keyQueue) (model.Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(q.jobs) == 0 {
		delete(p.queues, key)
		return model.Job{}, false
	}

	job := q.jobs[0]
	q.jobs[0] = model.Job{}
	q.jobs = q.jobs[1:]
	metrics.AddQueueDepth(-1)
	return job, true
}

func (p *Pool) abandonQueue(key string, q *keyQueue, head model.Job) {
	p.mu.Lock()
	rest := q.jobs
	q.jobs = nil
	delete(p.queues, key)
	p.mu.Unlock()

	metrics.AddQueueDepth(-len(rest))
	reason := apperrors.ShuttingDown()
	p.abandon(head, reason)
	for _, job := range rest {
		p.abandon(job, reason)
	}
}

// Shutdown stops intake and waits for queued and in-flight jobs. When ctx
// expires first, running handlers are cancelled, queued jobs are abandoned,
// and an error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
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
		log.Info().Msg("worker pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		log.Warn().Msg("worker pool shutdown grace period exceeded")
		return fmt.Errorf("shutdown worker pool: %w", ctx.Err())
	}
}
