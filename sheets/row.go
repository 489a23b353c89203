package sheets

import (
	"time"

	"story_feedback_collector/review"
)

const TimestampLayout = "2006-01-02 15:04:05"

// BuildRow lays out one record as
// [timestamp, story, definition of done, title1, content1, ...].
func BuildRow(ts time.Time, story, definitionOfDone string, items []review.FeedbackItem) []string {
	row := make([]string, 0, 3+2*len(items))
	row = append(row, ts.Format(TimestampLayout), story, definitionOfDone)
	for _, item := range items {
		row = append(row, item.Title, item.Content)
	}
	return row
}
