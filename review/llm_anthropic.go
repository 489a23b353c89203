package review

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"story_feedback_collector/apperror"
)

const DefaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicLLM implements LLMClient over the Messages API.
type AnthropicLLM struct {
	Model string
	Opts  []anthropicoption.RequestOption
}

func NewAnthropicLLMFromConfig(cfg *LLMSettings) (*AnthropicLLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	opts := []anthropicoption.RequestOption{anthropicoption.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicLLM{Model: model, Opts: opts}, nil
}

func (a *AnthropicLLM) Complete(ctx context.Context, apiKey string, in Instruction) (string, error) {
	opts := append([]anthropicoption.RequestOption{anthropicoption.WithAPIKey(apiKey)}, a.Opts...)
	client := anthropic.NewClient(opts...)

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.Model),
		MaxTokens:   MaxTokens,
		Temperature: anthropic.Float(Temperature),
		System:      []anthropic.TextBlockParam{{Text: in.System}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(in.User)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			msg := gjson.Get(apiErr.RawJSON(), "error.message").String()
			return "", apperror.UpstreamError(orFallback(msg), err)
		}
		return "", apperror.UpstreamError(fallbackErrorMessage, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
