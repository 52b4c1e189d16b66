package review

import (
	"strings"

	"github.com/joescharf/rq/internal/models"
)

// PartitionAttachments splits list by source into task and submission buckets,
// keeping order. Other sources are dropped. A nil list means "not loaded yet"
// and yields nil buckets; an empty list yields empty buckets.
func PartitionAttachments(list []*models.Attachment) (task, submission []*models.Attachment) {
	if list == nil {
		return nil, nil
	}
	task = []*models.Attachment{}
	submission = []*models.Attachment{}
	for _, a := range list {
		switch {
		case strings.EqualFold(a.Source, models.AttachmentSourceTask):
			task = append(task, a)
		case strings.EqualFold(a.Source, models.AttachmentSourceSubmission):
			submission = append(submission, a)
		}
	}
	return task, submission
}
