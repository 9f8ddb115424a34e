package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

// Client talks to an OpenAI-compatible chat completions endpoint.
// Provider failures are surfaced as retryable typed errors so callers can
// offer a retry instead of hanging on a spinner.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config configures the provider client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient constructs a provider client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a system+user prompt and returns the raw text response.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.7,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.logger.Warn("provider timed out", zap.Duration("elapsed", time.Since(start)))
			return "", appErrors.Wrap(err, appErrors.ErrProviderTimeout.Code, appErrors.ErrProviderTimeout.Status, appErrors.ErrProviderTimeout.Message)
		}
		return "", appErrors.Wrap(err, appErrors.ErrProviderResponse.Code, appErrors.ErrProviderResponse.Status, "content provider unreachable, retry the request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrProviderResponse.Code, appErrors.ErrProviderResponse.Status, appErrors.ErrProviderResponse.Message)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", appErrors.Wrap(fmt.Errorf("provider status %d", resp.StatusCode),
			appErrors.ErrProviderResponse.Code, appErrors.ErrProviderResponse.Status, appErrors.ErrProviderResponse.Message)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrProviderResponse.Code, appErrors.ErrProviderResponse.Status, appErrors.ErrProviderResponse.Message)
	}
	if parsed.Error != nil {
		return "", appErrors.Wrap(fmt.Errorf("provider error: %s", parsed.Error.Message),
			appErrors.ErrProviderResponse.Code, appErrors.ErrProviderResponse.Status, appErrors.ErrProviderResponse.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", appErrors.Clone(appErrors.ErrProviderResponse, "content provider returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// CompleteJSON runs Complete and unmarshals the response into dest.
// Providers occasionally wrap JSON in markdown fences; those are stripped
// before parsing.
func (c *Client) CompleteJSON(ctx context.Context, system, user string, dest interface{}) error {
	content, err := c.Complete(ctx, system, user)
	if err != nil {
		return err
	}
	cleaned := stripFences(content)
	if err := json.Unmarshal([]byte(cleaned), dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrProviderResponse.Code, appErrors.ErrProviderResponse.Status, appErrors.ErrProviderResponse.Message)
	}
	return nil
}

func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(trimmed)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
