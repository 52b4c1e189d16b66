package models

import "time"

// Attachment sources recognised by the review view. Matching is case-insensitive.
const (
	AttachmentSourceTask       = "task"
	AttachmentSourceSubmission = "submission"
)

// Attachment is a file linked to a submission, tagged with where it came from.
type Attachment struct {
	ID           string    `json:"id"`
	SubmissionID int       `json:"submissionId"`
	Source       string    `json:"source"`
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"createdAt"`
}
