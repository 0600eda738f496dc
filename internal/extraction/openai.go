package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is the chat model used when none is configured.
const DefaultOpenAIModel = openai.ChatModelGPT4oMini

// OpenAICompleter is a Completer backed by the OpenAI chat completions API.
type OpenAICompleter struct {
	client    *openai.Client
	model     string
	maxTokens int64
}

// NewOpenAICompleter creates an OpenAI completer. Extra request options (for
// example option.WithBaseURL in tests) are appended after the API key.
func NewOpenAICompleter(apiKey, model string, opts ...option.RequestOption) *OpenAICompleter {
	if model == "" {
		model = string(DefaultOpenAIModel)
	}
	client := openai.NewClient(append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)...)
	return &OpenAICompleter{
		client:    &client,
		model:     model,
		maxTokens: 500,
	}
}

// Model returns the configured model name.
func (c *OpenAICompleter) Model() string {
	return c.model
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.2),
		MaxTokens:   openai.Int(c.maxTokens),
	})
	if err != nil {
		return "", wrapOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in openai response", ErrMalformed)
	}
	return resp.Choices[0].Message.Content, nil
}

func wrapOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{Provider: "openai", StatusCode: apiErr.StatusCode, Err: err}
	}
	return &APIError{Provider: "openai", Err: err}
}
