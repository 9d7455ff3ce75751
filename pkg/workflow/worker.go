package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/protocol"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/queue"
)

// Worker option defaults mirror the queue shape the engine was sized for:
// five concurrent automation jobs, three AI jobs capped at ten per minute
// with three attempts.
var (
	automationWorkerOptions = queue.WorkerOptions{
		Concurrency: 5,
		MaxAttempts: 3,
	}

	aiWorkerOptions = queue.WorkerOptions{
		Concurrency: 3,
		MaxAttempts: 3,
		RateLimit:   &queue.RateLimit{Max: 10, Per: time.Minute},
	}
)

// Worker binds the engine's handlers to the job queue and runs them.
type Worker struct {
	logger     *slog.Logger
	jobQueue   queue.Queue
	dispatcher *Dispatcher
	executor   *Executor
	analyzer   protocol.Analyzer
}

// NewWorker wires the worker.
func NewWorker(logger *slog.Logger, jobQueue queue.Queue, dispatcher *Dispatcher, executor *Executor, analyzer protocol.Analyzer) *Worker {
	return &Worker{
		logger:     logger.With("module", "worker"),
		jobQueue:   jobQueue,
		dispatcher: dispatcher,
		executor:   executor,
		analyzer:   analyzer,
	}
}

// Start registers the queue handlers and launches the queue workers.
func (w *Worker) Start(ctx context.Context) error {
	w.jobQueue.RegisterHandler(QueueAutomation, w.handleAutomationJob, automationWorkerOptions)
	w.jobQueue.RegisterHandler(QueueAIAnalysis, w.handleAnalysisJob, aiWorkerOptions)

	err := w.jobQueue.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start job queue: %w", err)
	}

	w.logger.InfoContext(ctx, "worker started")

	return nil
}

func (w *Worker) handleAutomationJob(ctx context.Context, job *queue.Job) error {
	switch job.Name {
	case JobTrigger:
		var payload TriggerJob

		err := job.Decode(&payload)
		if err != nil {
			return fmt.Errorf("failed to decode trigger job: %w", err)
		}

		// An inbound message wakes parked runs before it can start new ones,
		// so a reply never races the automation it resumes.
		if payload.Trigger == models.TriggerMessageReceived {
			err := w.executor.ResumeForReply(ctx, payload.CustomerID)
			if err != nil {
				return err
			}
		}

		return w.dispatcher.Dispatch(ctx, payload)
	case JobExecuteStep:
		var payload ExecuteStepJob

		err := job.Decode(&payload)
		if err != nil {
			return fmt.Errorf("failed to decode execute-step job: %w", err)
		}

		return w.executor.ExecuteStep(ctx, payload.RunID, payload.StepID)
	default:
		w.logger.WarnContext(ctx, "unknown automation job", "job", job.Name)

		return nil
	}
}

func (w *Worker) handleAnalysisJob(ctx context.Context, job *queue.Job) error {
	if job.Name != JobAnalyze {
		w.logger.WarnContext(ctx, "unknown analysis job", "job", job.Name)

		return nil
	}

	var payload AnalyzeJob

	err := job.Decode(&payload)
	if err != nil {
		return fmt.Errorf("failed to decode analyze job: %w", err)
	}

	_, err = w.analyzer.AnalyzeCustomer(ctx, payload.CustomerID)

	return err
}

// QueueStepScheduler schedules step execution through the job queue,
// implementing StepScheduler.
type QueueStepScheduler struct {
	jobQueue queue.Queue
}

// NewQueueStepScheduler creates the queue-backed step scheduler.
func NewQueueStepScheduler(jobQueue queue.Queue) *QueueStepScheduler {
	return &QueueStepScheduler{jobQueue: jobQueue}
}

func (s *QueueStepScheduler) ScheduleResume(ctx context.Context, runID, stepID string, delay time.Duration) error {
	opts := []queue.EnqueueOption{}
	if delay > 0 {
		opts = append(opts, queue.WithDelay(delay))
	}

	return s.jobQueue.Enqueue(ctx, QueueAutomation, JobExecuteStep, ExecuteStepJob{
		RunID:  runID,
		StepID: stepID,
	}, opts...)
}

var _ StepScheduler = (*QueueStepScheduler)(nil)
