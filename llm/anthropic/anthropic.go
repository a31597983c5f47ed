package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gmaps-reviews-analyzer/models"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

// Client is the single-turn completion capability the analyzer depends on.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// HTTPClient calls the Anthropic messages API. One request, one response:
// no streaming, no multi-turn context, no retry.
type HTTPClient struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	baseURL     string
	httpClient  *http.Client
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithBaseURL points the client at a different endpoint (used by tests).
func WithBaseURL(url string) Option {
	return func(c *HTTPClient) {
		c.baseURL = url
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// NewHTTPClient creates a messages-API client with a fixed model and
// sampling setup.
func NewHTTPClient(apiKey, model string, maxTokens int, temperature float64, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Error   *apiError      `json:"error"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Complete submits {system, user} and returns the first text block of the
// response. Failures come back as *models.BackendError.
func (c *HTTPClient) Complete(ctx context.Context, system, user string) (string, error) {
	reqBody := messagesRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		System:      system,
		Messages:    []message{{Role: "user", Content: user}},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", &models.BackendError{Service: "anthropic", Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", &models.BackendError{Service: "anthropic", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &models.BackendError{Service: "anthropic", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Error bodies are JSON when the API itself answers, but a proxy
		// in front of it may return HTML. The status code always survives.
		var decoded messagesResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err == nil && decoded.Error != nil {
			return "", &models.BackendError{Service: "anthropic", Err: fmt.Errorf("%s: %s", decoded.Error.Type, decoded.Error.Message)}
		}
		return "", &models.BackendError{Service: "anthropic", Err: fmt.Errorf("upstream returned %d", resp.StatusCode)}
	}

	var decoded messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &models.BackendError{Service: "anthropic", Err: fmt.Errorf("decode response: %w", err)}
	}

	for _, block := range decoded.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", &models.BackendError{Service: "anthropic", Err: fmt.Errorf("response carried no text content")}
}
