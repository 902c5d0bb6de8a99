package clients

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// OpenAIConfig configures the OpenAI-backed completer.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // optional, for OpenAI-compatible endpoints
	Model       string // defaults to gpt-4o-mini
	Temperature float32
}

// OpenAICompleter implements Completer over the OpenAI chat completion
// API. OpenAI-compatible providers work via BaseURL.
type OpenAICompleter struct {
	client *openai.Client
	model  string
	temp   float32
}

// NewOpenAICompleter creates a completer from cfg.
func NewOpenAICompleter(cfg OpenAIConfig) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "openai api key is empty")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAICompleter{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		temp:   cfg.Temperature,
	}, nil
}

// Complete sends prompt as a single user message and returns the first
// choice. A non-nil schema switches the request to structured JSON
// output conforming to it.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string, outSchema json.RawMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temp,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if outSchema != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "response",
				Schema: outSchema,
				Strict: true,
			},
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeExecution, "chat completion failed").WithCause(err)
	}
	if len(resp.Choices) == 0 {
		return "", schema.NewError(schema.ErrCodeExecution, "chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

var _ Completer = (*OpenAICompleter)(nil)
