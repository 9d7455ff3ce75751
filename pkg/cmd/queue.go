package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/queue"
	queuememory "github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/queue/memory"
	queueredis "github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/queue/redis"
)

// NewQueue creates the job queue. A redis URL gets the Redis backend,
// anything else the in-memory one.
func NewQueue(ctx context.Context, logger *slog.Logger, redisURL string) queue.Queue {
	if parseProvider(redisURL) == "redis" {
		q, err := queueredis.NewQueue(ctx, logger, redisURL)
		if err != nil {
			panic(fmt.Errorf("failed to create redis queue: %w", err))
		}

		return q
	}

	return queuememory.NewQueue(logger)
}
