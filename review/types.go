package review

// FeedbackItem is one titled block of review commentary.
type FeedbackItem struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
