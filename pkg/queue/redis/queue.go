// Package redis implements the job queue on Redis lists with a sorted set
// for delayed jobs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/queue"
)

const (
	popTimeout      = time.Second
	promoteInterval = time.Second
	promoteBatch    = 100
)

type registration struct {
	handler queue.Handler
	opts    queue.WorkerOptions
}

// Queue drives jobs through Redis. Ready jobs live in a list per queue name,
// delayed jobs in a sorted set scored by their ready time.
type Queue struct {
	client   *goredis.Client
	logger   *slog.Logger
	handlers map[string]registration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewQueue connects to Redis and returns the queue.
func NewQueue(ctx context.Context, logger *slog.Logger, redisURL string) (*Queue, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Queue{
		client:   client,
		logger:   logger,
		handlers: make(map[string]registration),
	}, nil
}

func readyKey(queueName string) string   { return "queue:" + queueName }
func delayedKey(queueName string) string { return "queue:" + queueName + ":delayed" }

// Enqueue pushes a job onto the named queue, optionally delayed.
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

	return q.push(ctx, queueName, job, options.Delay)
}

func (q *Queue) push(ctx context.Context, queueName string, job *queue.Job, delay time.Duration) error {
	envelope, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if delay > 0 {
		readyAt := float64(time.Now().Add(delay).UnixMilli())

		err = q.client.ZAdd(ctx, delayedKey(queueName), goredis.Z{Score: readyAt, Member: envelope}).Err()
		if err != nil {
			return fmt.Errorf("failed to enqueue delayed job: %w", err)
		}

		return nil
	}

	err = q.client.RPush(ctx, readyKey(queueName), envelope).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

// RegisterHandler binds a handler to a queue name.
func (q *Queue) RegisterHandler(queueName string, handler queue.Handler, opts queue.WorkerOptions) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[queueName] = registration{handler: handler, opts: opts}
}

// Start launches the worker and promoter goroutines for every registered
// queue and returns.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel != nil {
		return fmt.Errorf("queue already started")
	}

	workerCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	for queueName, reg := range q.handlers {
		q.wg.Add(1)

		go func(queueName string) {
			defer q.wg.Done()
			q.promoteLoop(workerCtx, queueName)
		}(queueName)

		var limiter *queue.Limiter
		if reg.opts.RateLimit != nil {
			limiter = queue.NewLimiter(workerCtx, reg.opts.RateLimit.Max, reg.opts.RateLimit.Per)
		}

		for i := 0; i < reg.opts.EffectiveConcurrency(); i++ {
			q.wg.Add(1)

			go func(queueName string, reg registration, limiter *queue.Limiter) {
				defer q.wg.Done()
				q.workLoop(workerCtx, queueName, reg, limiter)
			}(queueName, reg, limiter)
		}
	}

	return nil
}

// Close stops the workers and closes the Redis connection.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()

	q.wg.Wait()

	err := q.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

// promoteLoop moves due delayed jobs onto the ready list.
func (q *Queue) promoteLoop(ctx context.Context, queueName string) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.promoteDue(ctx, queueName)
		}
	}
}

func (q *Queue) promoteDue(ctx context.Context, queueName string) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	members, err := q.client.ZRangeByScore(ctx, delayedKey(queueName), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatch,
	}).Result()
	if err != nil {
		q.logger.ErrorContext(ctx, "failed to read delayed jobs", "queue", queueName, "error", err)

		return
	}

	for _, member := range members {
		// ZRem gates promotion so concurrent promoters move each job once.
		removed, err := q.client.ZRem(ctx, delayedKey(queueName), member).Result()
		if err != nil {
			q.logger.ErrorContext(ctx, "failed to remove delayed job", "queue", queueName, "error", err)

			continue
		}

		if removed == 0 {
			continue
		}

		err = q.client.RPush(ctx, readyKey(queueName), member).Err()
		if err != nil {
			q.logger.ErrorContext(ctx, "failed to promote delayed job", "queue", queueName, "error", err)
		}
	}
}

func (q *Queue) workLoop(ctx context.Context, queueName string, reg registration, limiter *queue.Limiter) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := q.client.BLPop(ctx, popTimeout, readyKey(queueName)).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) || ctx.Err() != nil {
				continue
			}

			q.logger.ErrorContext(ctx, "failed to pop job", "queue", queueName, "error", err)
			time.Sleep(popTimeout)

			continue
		}

		if len(result) < 2 {
			continue
		}

		var job queue.Job

		err = json.Unmarshal([]byte(result[1]), &job)
		if err != nil {
			q.logger.ErrorContext(ctx, "failed to decode job", "queue", queueName, "error", err)

			continue
		}

		if limiter != nil {
			if !limiter.Wait(ctx) {
				return
			}
		}

		q.runJob(ctx, queueName, reg, &job)
	}
}

func (q *Queue) runJob(ctx context.Context, queueName string, reg registration, job *queue.Job) {
	err := reg.handler(ctx, job)
	if err == nil {
		return
	}

	if job.Attempt >= reg.opts.EffectiveMaxAttempts() {
		q.logger.ErrorContext(ctx, "job failed permanently",
			"queue", queueName, "job", job.Name, "job_id", job.ID, "attempt", job.Attempt, "error", err)

		return
	}

	q.logger.WarnContext(ctx, "job failed, retrying",
		"queue", queueName, "job", job.Name, "job_id", job.ID, "attempt", job.Attempt, "error", err)

	retry := *job
	retry.Attempt = job.Attempt + 1

	pushErr := q.push(ctx, queueName, &retry, queue.Backoff(retry.Attempt))
	if pushErr != nil {
		q.logger.ErrorContext(ctx, "failed to schedule job retry",
			"queue", queueName, "job", job.Name, "job_id", job.ID, "error", pushErr)
	}
}
