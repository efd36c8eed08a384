// Package llm provides the shared language-model completion client used by
// the fallback enricher and the issue matcher.
package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Completer issues a single text completion. Both LLM-backed pipeline stages
// depend on this interface so they can be tested with fakes.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Client is the OpenAI-backed Completer. One configured instance is built at
// process start and injected wherever a completion is needed.
type Client struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewClient creates a Client for the given API key and model.
func NewClient(apiKey, model string, logger *zap.Logger) *Client {
	return &Client{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}
}

// Complete sends a single-user-message chat completion and returns the
// trimmed response content.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		c.logger.Error("Chat completion failed", zap.Error(err))
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
