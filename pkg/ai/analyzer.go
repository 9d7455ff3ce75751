// Package ai scores customer conversations through an OpenAI-compatible
// chat completion API and writes the verdict back to the CRM.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/persistence"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	// How much conversation history the model sees.
	historyLimit = 50
)

const systemPrompt = `You are a CRM lead analyst. Given a customer profile and their recent WhatsApp conversation, respond with a JSON object containing: leadScore (0-100), temperature (HOT, WARM, COLD or DEAD), stageRecommendation (NEW, ENGAGED, INTERESTED, NEGOTIATION, CONVERTED or CHURNED), tags (up to 5 short labels), sentiment, summary (2-3 sentences) and recommendedAction. Respond with JSON only.`

// Analyzer runs conversation analysis and persists the outcome.
type Analyzer struct {
	httpClient  *http.Client
	logger      *slog.Logger
	persistence persistence.Persistence
	baseURL     string
	apiKey      string
	model       string
}

// Option configures the analyzer.
type Option func(*Analyzer)

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(a *Analyzer) {
		a.baseURL = baseURL
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(a *Analyzer) {
		a.httpClient = httpClient
	}
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(a *Analyzer) {
		a.model = model
	}
}

// NewAnalyzer creates an analyzer backed by an OpenAI-compatible endpoint.
func NewAnalyzer(logger *slog.Logger, persist persistence.Persistence, apiKey string, opts ...Option) *Analyzer {
	analyzer := &Analyzer{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		logger:      logger,
		persistence: persist,
		baseURL:     defaultBaseURL,
		apiKey:      apiKey,
		model:       defaultModel,
	}

	for _, opt := range opts {
		opt(analyzer)
	}

	return analyzer
}

// AnalyzeCustomer scores the customer's conversation and applies the verdict:
// score, temperature and summary on the customer record, AI tags, and an
// activity entry. Customers without message history return nil without error.
func (a *Analyzer) AnalyzeCustomer(ctx context.Context, customerID string) (*models.AnalysisResult, error) {
	customer, err := a.persistence.CustomerByID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}

	if customer == nil {
		return nil, fmt.Errorf("customer %s not found", customerID)
	}

	messages, err := a.persistence.RecentMessages(ctx, customerID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	if len(messages) == 0 {
		a.logger.InfoContext(ctx, "skipping analysis, no conversation history", "customer_id", customerID)

		return nil, nil
	}

	result, err := a.complete(ctx, buildPrompt(customer, messages))
	if err != nil {
		return nil, err
	}

	err = a.apply(ctx, customer, result)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func buildPrompt(customer *models.Customer, messages []*models.Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Customer: %s\n", customer.Name)
	fmt.Fprintf(&b, "Stage: %s, Score: %d, Temperature: %s\n", customer.LeadStage, customer.LeadScore, customer.LeadTemperature)
	fmt.Fprintf(&b, "Total messages: %d, Total spent: %.2f\n\n", customer.TotalMessages, customer.TotalSpent)
	b.WriteString("Recent conversation (newest first):\n")

	for _, message := range messages {
		role := "Customer"
		if message.Direction == models.MessageOutbound {
			role = "Business"
		}

		fmt.Fprintf(&b, "%s: %s\n", role, message.Content)
	}

	return b.String()
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (a *Analyzer) complete(ctx context.Context, prompt string) (*models.AnalysisResult, error) {
	request := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.2,
		ResponseFormat: &chatFormat{Type: "json_object"},
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpRequest.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := a.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat API: %w", err)
	}

	defer func() {
		err := httpResponse.Body.Close()
		if err != nil {
			a.logger.Error("failed to close response body", "error", err)
		}
	}()

	responseBody, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		return nil, fmt.Errorf("chat API returned status %d: %s", httpResponse.StatusCode, string(responseBody))
	}

	var response chatResponse

	err = json.Unmarshal(responseBody, &response)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("chat API returned no choices")
	}

	var result models.AnalysisResult

	err = json.Unmarshal([]byte(response.Choices[0].Message.Content), &result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse analysis verdict: %w", err)
	}

	return &result, nil
}

func (a *Analyzer) apply(ctx context.Context, customer *models.Customer, result *models.AnalysisResult) error {
	customer.LeadScore = result.LeadScore
	customer.LeadTemperature = result.Temperature
	customer.AISummary = result.Summary

	err := a.persistence.SaveCustomer(ctx, customer)
	if err != nil {
		return fmt.Errorf("failed to save analysis on customer: %w", err)
	}

	for _, tagName := range result.Tags {
		tag, err := a.persistence.UpsertTagByName(ctx, tagName, true)
		if err != nil {
			return fmt.Errorf("failed to upsert tag %q: %w", tagName, err)
		}

		err = a.persistence.TagCustomer(ctx, customer.ID, tag.ID)
		if err != nil {
			return fmt.Errorf("failed to tag customer: %w", err)
		}
	}

	err = a.persistence.CreateActivity(ctx, &models.Activity{
		CustomerID:  customer.ID,
		Type:        models.ActivityAIAnalysis,
		Description: fmt.Sprintf("AI analysis: score %d, %s. %s", result.LeadScore, result.Temperature, result.Summary),
	})
	if err != nil {
		return fmt.Errorf("failed to record analysis activity: %w", err)
	}

	return nil
}
