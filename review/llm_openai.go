package review

import (
	"context"
	"errors"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"story_feedback_collector/apperror"
)

const (
	DefaultOpenAIModel = "gpt-4-turbo-preview"

	fallbackErrorMessage = "Failed to get feedback"
)

// OpenAILLM implements LLMClient using the official openai-go SDK (chat completions).
type OpenAILLM struct {
	Model string
	Opts  []option.RequestOption
}

func NewOpenAILLMFromConfig(cfg *LLMSettings) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	// SDK retries are disabled: every failure is terminal for the request.
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAILLM{Model: model, Opts: opts}, nil
}

func (o *OpenAILLM) Complete(ctx context.Context, apiKey string, in Instruction) (string, error) {
	opts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, o.Opts...)
	client := openai.NewClient(opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(in.System),
			openai.UserMessage(in.User),
		},
		Temperature: openai.Float(Temperature),
		MaxTokens:   openai.Int(MaxTokens),
	})
	if err != nil {
		return "", openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperror.UpstreamError("openai: empty choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = gjson.Get(apiErr.RawJSON(), "error.message").String()
		}
		return apperror.UpstreamError(orFallback(msg), err)
	}
	return apperror.UpstreamError(fallbackErrorMessage, err)
}

func orFallback(msg string) string {
	if msg == "" {
		return fallbackErrorMessage
	}
	return msg
}
