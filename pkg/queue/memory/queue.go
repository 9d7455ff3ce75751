// Package memory implements the job queue in process memory for tests and
// local development.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/queue"
)

type registration struct {
	handler queue.Handler
	opts    queue.WorkerOptions
	jobs    chan *queue.Job
}

// Queue delivers jobs through channels. Delayed jobs are held by timers and
// released when due; retries follow the same backoff as the Redis backend.
type Queue struct {
	logger   *slog.Logger
	handlers map[string]*registration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	timers  []*time.Timer
}

// NewQueue creates an empty in-memory queue.
func NewQueue(logger *slog.Logger) *Queue {
	return &Queue{
		logger:   logger,
		handlers: make(map[string]*registration),
	}
}

func (q *Queue) RegisterHandler(queueName string, handler queue.Handler, opts queue.WorkerOptions) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[queueName] = &registration{
		handler: handler,
		opts:    opts,
		jobs:    make(chan *queue.Job, 1024),
	}
}

func (q *Queue) Enqueue(ctx context.Context, queueName, jobName string, payload any, opts ...queue.EnqueueOption) error {
	options := queue.EnqueueOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate job ID: %w", err)
	}

	job := &queue.Job{
		ID:         id.String(),
		Name:       jobName,
		Payload:    raw,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}

	return q.push(queueName, job, options.Delay)
}

func (q *Queue) push(queueName string, job *queue.Job, delay time.Duration) error {
	q.mu.Lock()
	reg, ok := q.handlers[queueName]
	q.mu.Unlock()

	if !ok {
		return fmt.Errorf("no handler registered for queue %s", queueName)
	}

	if delay > 0 {
		timer := time.AfterFunc(delay, func() {
			reg.jobs <- job
		})

		q.mu.Lock()
		q.timers = append(q.timers, timer)
		q.mu.Unlock()

		return nil
	}

	reg.jobs <- job

	return nil
}

// Start launches the workers for every registered queue and returns.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return fmt.Errorf("queue already started")
	}

	q.started = true

	workerCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	for queueName, reg := range q.handlers {
		var limiter *queue.Limiter
		if reg.opts.RateLimit != nil {
			limiter = queue.NewLimiter(workerCtx, reg.opts.RateLimit.Max, reg.opts.RateLimit.Per)
		}

		for i := 0; i < reg.opts.EffectiveConcurrency(); i++ {
			q.wg.Add(1)

			go func(queueName string, reg *registration, limiter *queue.Limiter) {
				defer q.wg.Done()
				q.workLoop(workerCtx, queueName, reg, limiter)
			}(queueName, reg, limiter)
		}
	}

	return nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	if q.cancel != nil {
		q.cancel()
	}

	for _, timer := range q.timers {
		timer.Stop()
	}
	q.mu.Unlock()

	q.wg.Wait()

	return nil
}

func (q *Queue) workLoop(ctx context.Context, queueName string, reg *registration, limiter *queue.Limiter) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-reg.jobs:
			if limiter != nil {
				if !limiter.Wait(ctx) {
					return
				}
			}

			err := reg.handler(ctx, job)
			if err == nil {
				continue
			}

			if job.Attempt >= reg.opts.EffectiveMaxAttempts() {
				q.logger.ErrorContext(ctx, "job failed permanently",
					"queue", queueName, "job", job.Name, "job_id", job.ID, "attempt", job.Attempt, "error", err)

				continue
			}

			retry := *job
			retry.Attempt = job.Attempt + 1

			pushErr := q.push(queueName, &retry, queue.Backoff(retry.Attempt))
			if pushErr != nil {
				q.logger.ErrorContext(ctx, "failed to schedule job retry",
					"queue", queueName, "job", job.Name, "job_id", job.ID, "error", pushErr)
			}
		}
	}
}
