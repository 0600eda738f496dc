package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is the Claude model used when none is configured.
const DefaultAnthropicModel = anthropic.ModelClaudeHaiku4_5

// AnthropicCompleter is a Completer backed by the Anthropic messages API.
type AnthropicCompleter struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicCompleter creates an Anthropic completer.
func NewAnthropicCompleter(apiKey, model string, opts ...option.RequestOption) *AnthropicCompleter {
	m := anthropic.Model(model)
	if model == "" {
		m = DefaultAnthropicModel
	}
	client := anthropic.NewClient(append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)...)
	return &AnthropicCompleter{
		client:    &client,
		model:     m,
		maxTokens: 500,
	}
}

// Model returns the configured model name.
func (c *AnthropicCompleter) Model() string {
	return string(c.model)
}

// Complete implements Completer.
func (c *AnthropicCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0.2),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", wrapAnthropicError(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		sb.WriteString(block.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no text in anthropic response", ErrMalformed)
	}
	return sb.String(), nil
}

func wrapAnthropicError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &APIError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Err: err}
	}
	return &APIError{Provider: "anthropic", Err: err}
}
