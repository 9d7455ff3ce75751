// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/persistence"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/persistence/memory"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/persistence/postgresql"
)

// NewPersistence creates the persistence layer for the database URL. Postgres
// URLs get the real backend, anything else the in-memory one.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create postgresql persistence: %w", err))
		}

		return persist
	default:
		return memory.NewPersistence()
	}
}

func parseProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)

	return parts[0]
}
