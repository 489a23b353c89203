package review

import (
	"context"
	"strings"
)

// MockLLM is an offline implementation for local debugging; it never calls a model.
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, _ string, in Instruction) (string, error) {
	var sb strings.Builder
	sb.WriteString("**Mock review**\n\n")
	sb.WriteString("The following instruction would have been sent to the model:\n\n")
	sb.WriteString("```\n")
	sb.WriteString(in.User)
	sb.WriteString("\n```\n")
	return sb.String(), nil
}
