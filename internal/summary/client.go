package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrTransport marks failures talking to the model: network, auth, quota, or
// an unreadable response envelope.
var ErrTransport = errors.New("summary transport failed")

const (
	defaultBaseURL = "https://api.openai.com"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second
	temperature    = 0.7
	maxErrorBody   = 4 << 10
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the body of POST /v1/chat/completions.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Completer sends a chat completion and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ClientConfig configures a ChatClient.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	cfg    ClientConfig
	http   *http.Client
	logger *zap.Logger
}

// NewChatClient builds a ChatClient. A nil httpClient gets one with cfg.Timeout.
func NewChatClient(cfg ClientConfig, httpClient *http.Client, logger *zap.Logger) *ChatClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatClient{cfg: cfg, http: httpClient, logger: logger.Named("chat")}
}

// Model is the model name sent when a request leaves it empty.
func (c *ChatClient) Model() string {
	return c.cfg.Model
}

// Complete implements Completer. Every failure wraps ErrTransport.
func (c *ChatClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %w", ErrTransport, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %w", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("chat completion rejected",
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", time.Since(start)),
		)
		return "", fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrTransport, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", ErrTransport)
	}
	c.logger.Debug("chat completion received",
		zap.Duration("duration", time.Since(start)),
		zap.Int("tokens", decoded.Usage.TotalTokens),
		zap.String("finish_reason", decoded.Choices[0].FinishReason),
	)
	return decoded.Choices[0].Message.Content, nil
}
