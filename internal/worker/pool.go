package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Job is a unit of background work, such as resolving a systems map.
type Job struct {
	ID        uuid.UUID
	Name      string
	Run       func(ctx context.Context)
	CreatedAt time.Time
}

// Pool runs submitted jobs on a fixed set of goroutines. Jobs receive a
// context that is cancelled when the pool stops.
type Pool struct {
	jobs        chan Job
	workerCount int
	logger      *zap.Logger

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewPool(workerCount, queueSize int, logger *zap.Logger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:        make(chan Job, queueSize),
		workerCount: workerCount,
		logger:      logger,
		stopChan:    make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Info("worker pool started", zap.Int("workers", p.workerCount))
}

// Stop cancels running jobs, drops queued ones and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stopChan)
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

// Submit queues fn without blocking. It returns false when the pool is
// stopped or the queue is full.
func (p *Pool) Submit(name string, fn func(ctx context.Context)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}

	job := Job{ID: uuid.New(), Name: name, Run: fn, CreatedAt: time.Now()}
	select {
	case p.jobs <- job:
		return true
	default:
		p.logger.Warn("worker queue full, dropping job", zap.String("job", name))
		return false
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			p.logger.Debug("worker shutting down", zap.Int("worker", id))
			return
		case job := <-p.jobs:
			p.process(id, job)
		}
	}
}

func (p *Pool) process(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked",
				zap.Int("worker", id),
				zap.String("job", job.Name),
				zap.Any("panic", r))
		}
	}()

	start := time.Now()
	job.Run(p.ctx)
	p.logger.Debug("job finished",
		zap.Int("worker", id),
		zap.String("job", job.Name),
		zap.String("job_id", job.ID.String()),
		zap.Duration("queued", start.Sub(job.CreatedAt)),
		zap.Duration("elapsed", time.Since(start)))
}
