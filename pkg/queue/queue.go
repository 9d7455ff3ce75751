// Package queue defines the background job queue the automation engine runs
// on. Jobs are named JSON payloads; handlers are registered per queue and
// executed with bounded concurrency, optional rate limiting and retries.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Default retry backoff base. Attempt n waits base * 2^(n-1).
const DefaultRetryBackoff = 5 * time.Second

// Job is one unit of queued work.
type Job struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Decode unmarshals the job payload into dst.
func (j *Job) Decode(dst any) error {
	return json.Unmarshal(j.Payload, dst)
}

// Handler processes one job. A returned error triggers a retry until the
// queue's MaxAttempts is exhausted.
type Handler func(ctx context.Context, job *Job) error

// RateLimit caps job starts to Max per Per window.
type RateLimit struct {
	Max int
	Per time.Duration
}

// WorkerOptions configures how a queue's handler is driven.
type WorkerOptions struct {
	Concurrency int
	MaxAttempts int
	RateLimit   *RateLimit
}

// EffectiveConcurrency returns the worker count, defaulting to 1.
func (o WorkerOptions) EffectiveConcurrency() int {
	if o.Concurrency <= 0 {
		return 1
	}

	return o.Concurrency
}

// EffectiveMaxAttempts returns the attempt cap, defaulting to 1.
func (o WorkerOptions) EffectiveMaxAttempts() int {
	if o.MaxAttempts <= 0 {
		return 1
	}

	return o.MaxAttempts
}

// EnqueueOptions carries per-job enqueue settings.
type EnqueueOptions struct {
	Delay time.Duration
}

// EnqueueOption mutates EnqueueOptions.
type EnqueueOption func(*EnqueueOptions)

// WithDelay holds the job back for d before it becomes runnable.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.Delay = d
	}
}

// Queue is the job transport. RegisterHandler must be called before Start;
// Start returns after the workers are launched and Close drains them.
type Queue interface {
	Enqueue(ctx context.Context, queueName, jobName string, payload any, opts ...EnqueueOption) error
	RegisterHandler(queueName string, handler Handler, opts WorkerOptions)
	Start(ctx context.Context) error
	Close() error
}

// Backoff returns the retry delay before the given attempt (1-based).
func Backoff(attempt int) time.Duration {
	delay := DefaultRetryBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	return delay
}

// Limiter is a token bucket refilled in full every window. Both queue
// backends use it to enforce WorkerOptions.RateLimit.
type Limiter struct {
	tokens chan struct{}
}

// NewLimiter starts a limiter allowing max job starts per window. The refill
// goroutine stops when ctx ends.
func NewLimiter(ctx context.Context, max int, per time.Duration) *Limiter {
	l := &Limiter{tokens: make(chan struct{}, max)}

	for i := 0; i < max; i++ {
		l.tokens <- struct{}{}
	}

	go func() {
		ticker := time.NewTicker(per)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for i := 0; i < max; i++ {
					select {
					case l.tokens <- struct{}{}:
					default:
					}
				}
			}
		}
	}()

	return l
}

// Wait blocks until a token is available; false means the context ended.
func (l *Limiter) Wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-l.tokens:
		return true
	}
}
