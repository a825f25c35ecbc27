package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a unit of background work, typically a cache refetch. Drop, when
// set, is called instead of Run for a job still queued when the pool stops.
type Job struct {
	Key  string
	Run  func(ctx context.Context) error
	Drop func()
}

type Pool struct {
	logger *zap.Logger
	count  int
	jobs   chan Job
	wg     sync.WaitGroup
	stop   chan struct{}
	once   sync.Once

	// mu orders TrySubmit against closing stop, so nothing is queued after
	// Stop drains.
	mu sync.RWMutex
}

func NewPool(logger *zap.Logger, count int) *Pool {
	if count <= 0 {
		count = 1
	}
	return &Pool{
		logger: logger,
		count:  count,
		jobs:   make(chan Job, count*4),
		stop:   make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("workers", p.count))

	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// TrySubmit queues a job without waiting. It reports false when the queue
// is full or the pool has been stopped.
func (p *Pool) TrySubmit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	select {
	case <-p.stop:
		return false
	default:
	}

	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Stop waits for running jobs and drops the ones still queued.
func (p *Pool) Stop() {
	p.once.Do(func() {
		p.logger.Info("Stopping worker pool...")
		p.mu.Lock()
		close(p.stop)
		p.mu.Unlock()
	})
	p.wg.Wait()
	p.logger.Info("Worker pool stopped", zap.Int("dropped", p.drain()))
}

func (p *Pool) drain() int {
	n := 0
	for {
		select {
		case job := <-p.jobs:
			if job.Drop != nil {
				job.Drop()
			}
			n++
		default:
			return n
		}
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.process(ctx, id, job)
		}
	}
}

func (p *Pool) process(ctx context.Context, workerID int, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		p.logger.Warn("job failed",
			zap.Int("worker", workerID),
			zap.String("key", job.Key),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("job done",
		zap.Int("worker", workerID),
		zap.String("key", job.Key),
		zap.Duration("took", time.Since(start)),
	)
}
