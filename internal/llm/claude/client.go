// Package claude wraps the Anthropic SDK as guardian's reasoning collaborator.
package claude

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const responseTokens = 1024

// Client sends single-turn prompts to the Claude API. The assessor treats any
// error here as "collaborator unavailable" and falls back to its rule-based
// path, so the client never retries.
type Client struct {
	client  anthropic.Client
	model   anthropic.Model
	timeout time.Duration
}

// New creates a new Claude client with the given API key, model name, and
// per-call timeout.
func New(apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   anthropic.Model(model),
		timeout: timeout,
	}
}

// Generate sends the prompt and returns the raw text of the response. No
// structure is guaranteed; callers must parse defensively.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: responseTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude: %w", err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}
