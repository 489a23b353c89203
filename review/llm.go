package review

import "context"

const (
	Temperature = 0.7
	MaxTokens   = 1000
)

// LLMClient abstracts the completion provider so handlers can be tested
// against fakes. The API key is supplied by the caller on every request.
type LLMClient interface {
	Complete(ctx context.Context, apiKey string, in Instruction) (string, error)
}

// LLMSettings is the provider-independent configuration.
type LLMSettings struct {
	Provider string
	Model    string
	BaseURL  string
}
