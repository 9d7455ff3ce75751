package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/ai"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/clients/whatsapp"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/cmd"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/log"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/otelhelper"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/workflow"
)

func main() {
	command := &cli.Command{
		Name:                  "crm-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute CRM automations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "redis-url",
				Usage:    "Redis connection URL for the job queue",
				Required: true,
				Sources:  cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "whatsapp-phone-id",
				Usage:    "WhatsApp Business phone number ID",
				Required: true,
				Sources:  cli.EnvVars("WHATSAPP_PHONE_NUMBER_ID"),
			},
			&cli.StringFlag{
				Name:     "whatsapp-token",
				Usage:    "WhatsApp Business access token",
				Required: true,
				Sources:  cli.EnvVars("WHATSAPP_ACCESS_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "openai-api-key",
				Usage:   "API key for the AI analysis provider",
				Value:   "",
				Sources: cli.EnvVars("OPENAI_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "openai-model",
				Usage:   "Chat model used for AI analysis",
				Value:   "gpt-4o-mini",
				Sources: cli.EnvVars("OPENAI_MODEL"),
			},
			&cli.StringFlag{
				Name:    "admin-phone",
				Usage:   "Phone number receiving admin notifications",
				Value:   "",
				Sources: cli.EnvVars("ADMIN_PHONE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			tracerProvider, err := otelhelper.InitTracer(ctx, "crm-worker")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}
			defer func() {
				err := tracerProvider.Shutdown(ctx)
				if err != nil {
					slog.Error("Failed to shutdown tracer provider", "error", err)
				}
			}()

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("crm-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing CRM automation worker")

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persist := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persist.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			jobQueue := cmd.NewQueue(ctx, logger, command.String("redis-url"))
			defer func() {
				err := jobQueue.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close job queue", "error", err)
				}
			}()

			messenger := whatsapp.NewClient(logger,
				command.String("whatsapp-phone-id"),
				command.String("whatsapp-token"),
			)

			analyzer := ai.NewAnalyzer(logger, persist, command.String("openai-api-key"),
				ai.WithModel(command.String("openai-model")))

			dispatcher := workflow.NewDispatcher(logger, persist, jobQueue, eventBus)
			executor := workflow.NewExecutor(
				logger,
				persist,
				messenger,
				analyzer,
				workflow.NewQueueStepScheduler(jobQueue),
				eventBus,
				command.String("admin-phone"),
			)

			worker := workflow.NewWorker(logger, jobQueue, dispatcher, executor, analyzer)

			err = worker.Start(ctx)
			if err != nil {
				return err
			}

			scheduler := workflow.NewScheduler(logger, persist, jobQueue)

			err = scheduler.Start(ctx)
			if err != nil {
				return err
			}

			defer scheduler.Stop()

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-ctx.Done():
			case sig := <-signals:
				logger.InfoContext(ctx, "Shutting down", "signal", sig.String())
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
