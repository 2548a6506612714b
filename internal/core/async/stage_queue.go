package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/casda-stager/internal/casda"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// RequestProcessor is satisfied by core.Stager.
type RequestProcessor interface {
	ProcessRequest(ctx context.Context, id uuid.UUID) (*casda.StageResult, error)
}

type StageQueue struct {
	proc    RequestProcessor
	logger  *slog.Logger
	workers int
	timeout time.Duration // 0: a request may poll for as long as the job runs

	ch     chan Job
	wg     sync.WaitGroup
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc

	// Senders hold mu.RLock while sending on ch; Shutdown closes done to wake
	// them before taking mu.Lock to close ch.
	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
	stopOnce sync.Once
}

type Option func(*StageQueue)

func WithWorkers(n int) Option {
	return func(q *StageQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *StageQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *StageQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewStageQueue(proc RequestProcessor, logger *slog.Logger, opts ...Option) *StageQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &StageQueue{
		proc:    proc,
		logger:  logger,
		workers: 2,
		ch:      make(chan Job, 64),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.start()
	return q
}

func (q *StageQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.process(workerID, job)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *StageQueue) process(workerID int, job Job) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(q.ctx, q.timeout)
	} else {
		ctx, cancel = context.WithCancel(q.ctx)
	}
	defer cancel()

	res, err := q.proc.ProcessRequest(ctx, job.RequestID)
	if err != nil {
		q.logger.Error("staging failed", "worker_id", workerID, "request_id", job.RequestID, "error", err)
		return
	}
	q.logger.Info("staged request", "worker_id", workerID, "request_id", job.RequestID, "phase", res.Phase, "urls", len(res.URLs))
}

func (q *StageQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "request_id", job.RequestID)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued stage request", "request_id", job.RequestID)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "request_id", job.RequestID)
	select {
	case q.ch <- job:
		q.logger.Info("queued stage request", "request_id", job.RequestID)
		return nil
	case <-q.done:
		q.logger.Warn("cannot enqueue: queue is shutting down", "request_id", job.RequestID)
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for in-flight requests. If ctx ends
// first, running requests are cancelled; their remote jobs keep running.
func (q *StageQueue) Shutdown(ctx context.Context) {
	q.stopOnce.Do(func() { close(q.done) })
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context, cancelling in-flight requests")
		q.cancel()
		<-done
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
	q.cancel()
}
