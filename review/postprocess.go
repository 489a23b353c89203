package review

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"

	"story_feedback_collector/apperror"
)

// PostProcess trims the generated text and rejects empty output.
func PostProcess(raw string, p Prompt) (FeedbackItem, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return FeedbackItem{}, apperror.UpstreamError("model returned empty feedback for "+p.Title, nil)
	}
	return FeedbackItem{Title: p.Title, Content: content}, nil
}

// RenderHTML converts Markdown feedback into HTML for display. goldmark
// drops raw HTML from the source unless told otherwise.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
