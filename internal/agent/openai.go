package agent

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI asks an OpenAI chat model for each decision.
type OpenAI struct {
	client *openai.Client
	opts   LLMOptions
}

// NewOpenAI creates an OpenAI agent. With no API key the SDK reads OPENAI_API_KEY.
func NewOpenAI(opts LLMOptions) *OpenAI {
	if opts.Model == "" {
		opts.Model = openai.ChatModelGPT4oMini
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(clientOpts...)
	return &OpenAI{client: &client, opts: opts}
}

// Decide sends the envelope to the model and returns its JSON answer.
func (o *OpenAI) Decide(ctx context.Context, request []byte) ([]byte, error) {
	params := openai.ChatCompletionNewParams{
		Model: o.opts.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(o.opts.systemPrompt()),
			openai.UserMessage(userPrompt(request)),
		},
		MaxCompletionTokens: openai.Int(o.opts.maxTokens()),
	}
	if o.opts.Temperature > 0 {
		params.Temperature = openai.Float(o.opts.Temperature)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	return extractReply(resp.Choices[0].Message.Content)
}
