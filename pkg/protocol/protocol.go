// Package protocol defines the capability interfaces the automation engine
// consumes. Implementations live under pkg/clients and pkg/ai.
package protocol

import (
	"context"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
)

// Messenger sends outbound messages to a customer phone number. Transport
// failures are returned as errors; the executor converts them into failed
// steps.
type Messenger interface {
	SendText(ctx context.Context, to, text string) (messageID string, err error)
	SendTemplate(ctx context.Context, to, templateName, language string, params []string) (messageID string, err error)
}

// Analyzer scores a customer's conversation. A nil result with a nil error
// means there was no conversation history to analyze; callers treat that as
// a benign outcome rather than a failure.
type Analyzer interface {
	AnalyzeCustomer(ctx context.Context, customerID string) (*models.AnalysisResult, error)
}
