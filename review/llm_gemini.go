package review

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"story_feedback_collector/apperror"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiLLM implements LLMClient over the Gemini API.
type GeminiLLM struct {
	Model   string
	BaseURL string
}

func NewGeminiLLMFromConfig(cfg *LLMSettings) (*GeminiLLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiLLM{Model: model, BaseURL: cfg.BaseURL}, nil
}

func (g *GeminiLLM) Complete(ctx context.Context, apiKey string, in Instruction) (string, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return "", apperror.UpstreamError(fallbackErrorMessage, err)
	}

	resp, err := client.Models.GenerateContent(ctx, g.Model, genai.Text(in.User), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(in.System, genai.RoleUser),
		Temperature:       genai.Ptr[float32](Temperature),
		MaxOutputTokens:   MaxTokens,
	})
	if err != nil {
		return "", geminiError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", apperror.UpstreamError("gemini: empty candidates", nil)
	}
	return resp.Text(), nil
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apperror.UpstreamError(orFallback(apiErr.Message), err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apperror.UpstreamError(orFallback(apiErrPtr.Message), err)
	}
	return apperror.UpstreamError(fallbackErrorMessage, err)
}
