package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/cmd"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/log"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/workflow"
)

func main() {
	command := &cli.Command{
		Name:                  "crm-trigger",
		EnableShellCompletion: true,
		Usage:                 "Fire an automation trigger for a customer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "redis-url",
				Usage:    "Redis connection URL for the job queue",
				Required: true,
				Sources:  cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:     "trigger",
				Usage:    "Trigger kind (CUSTOMER_CREATED, PAYMENT_RECEIVED, MESSAGE_RECEIVED, STAGE_CHANGED, SCHEDULED, TAG_ADDED, MANUAL)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "customer-id",
				Usage:    "Customer the trigger applies to",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "automation-id",
				Usage: "Limit the trigger to one automation (required for MANUAL)",
				Value: "",
			},
			&cli.StringFlag{
				Name:  "data",
				Usage: "Trigger payload as a JSON object",
				Value: "",
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

			logger := log.WithModule("crm-trigger")

			trigger := models.TriggerKind(command.String("trigger"))
			automationID := command.String("automation-id")

			if trigger == models.TriggerManual && automationID == "" {
				return fmt.Errorf("MANUAL triggers require --automation-id")
			}

			var data map[string]any

			if raw := command.String("data"); raw != "" {
				err := json.Unmarshal([]byte(raw), &data)
				if err != nil {
					return fmt.Errorf("invalid --data payload: %w", err)
				}
			}

			jobQueue := cmd.NewQueue(ctx, logger, command.String("redis-url"))
			defer func() {
				err := jobQueue.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close job queue", "error", err)
				}
			}()

			err := jobQueue.Enqueue(ctx, workflow.QueueAutomation, workflow.JobTrigger, workflow.TriggerJob{
				Trigger:      trigger,
				CustomerID:   command.String("customer-id"),
				AutomationID: automationID,
				Data:         data,
			})
			if err != nil {
				return fmt.Errorf("failed to enqueue trigger: %w", err)
			}

			logger.InfoContext(ctx, "Trigger enqueued",
				"trigger", trigger, "customer_id", command.String("customer-id"))

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
