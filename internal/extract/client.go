package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"policy-graph/pkg/logger"
)

// extractionTemperature keeps repeated calls on similar input structurally
// stable; incremental idempotence depends on it
const extractionTemperature = 0.1

// Client talks to an OpenAI-compatible generation endpoint (DashScope
// compatible mode, LiteLLM, or anything speaking the chat completions API)
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates a new extraction-service client
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if apiKey == "" {
		// Local proxies accept any key
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	// Operators sometimes configure the /v1 path themselves
	base := strings.TrimRight(baseURL, "/")
	base = strings.TrimSuffix(base, "/v1")
	config.BaseURL = base + "/v1"

	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   model,
		timeout: timeout,
		logger:  logger.Get(),
	}
}

// Complete sends one system+user exchange and returns the raw response
// text. No retries: a failed call degrades to an empty extraction result at
// the caller, and the batch-level failure tolerance covers the rest.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: extractionTemperature,
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}

	content := resp.Choices[0].Message.Content
	c.logger.Debug("extraction completion received",
		zap.String("model", c.model),
		zap.Int("length", len(content)),
	)
	return content, nil
}
