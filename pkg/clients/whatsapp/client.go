// Package whatsapp sends outbound messages through the WhatsApp Business
// Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultBaseURL = "https://graph.facebook.com/v18.0"

// Client talks to the Cloud API for one phone number.
type Client struct {
	httpClient    *http.Client
	logger        *slog.Logger
	baseURL       string
	phoneNumberID string
	accessToken   string
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the Graph API base URL, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Cloud API client.
func NewClient(logger *slog.Logger, phoneNumberID, accessToken string, opts ...Option) *Client {
	client := &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        logger,
		baseURL:       defaultBaseURL,
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

type sendRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *textPayload     `json:"text,omitempty"`
	Template         *templatePayload `json:"template,omitempty"`
}

type textPayload struct {
	Body string `json:"body"`
}

type templatePayload struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText sends a plain text message and returns the provider message ID.
func (c *Client) SendText(ctx context.Context, to, text string) (string, error) {
	request := sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textPayload{Body: text},
	}

	return c.send(ctx, request)
}

// SendTemplate sends a pre-approved template message with body parameters.
func (c *Client) SendTemplate(ctx context.Context, to, templateName, language string, params []string) (string, error) {
	template := &templatePayload{
		Name:     templateName,
		Language: templateLanguage{Code: language},
	}

	if len(params) > 0 {
		parameters := make([]templateParameter, 0, len(params))
		for _, param := range params {
			parameters = append(parameters, templateParameter{Type: "text", Text: param})
		}

		template.Components = []templateComponent{{Type: "body", Parameters: parameters}}
	}

	request := sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template:         template,
	}

	return c.send(ctx, request)
}

func (c *Client) send(ctx context.Context, request sendRequest) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpRequest.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	defer func() {
		err := httpResponse.Body.Close()
		if err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	responseBody, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		return "", fmt.Errorf("whatsapp API returned status %d: %s", httpResponse.StatusCode, string(responseBody))
	}

	var response sendResponse

	err = json.Unmarshal(responseBody, &response)
	if err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Messages) == 0 {
		return "", fmt.Errorf("whatsapp API returned no message ID")
	}

	return response.Messages[0].ID, nil
}
