package review

import (
	"strconv"

	"github.com/joescharf/rq/internal/route"
)

// API path templates.
const (
	listEndpoint        = "/api/v1/projects/{projectId}/batches/{batchId}/submissions"
	detailEndpoint      = "/api/v1/submissions/{submissionId}"
	attachmentsEndpoint = "/api/v1/submissions/{submissionId}/attachments"
	statusesEndpoint    = "/api/v1/submission/statuses"
)

// ListPath is the list-view endpoint for a batch. It doubles as the default
// cache key under which the list view stores what it fetched.
func ListPath(projectID, batchID string) (string, error) {
	return route.Build(listEndpoint, route.Params{
		route.ParamProjectID: projectID,
		route.ParamBatchID:   batchID,
	})
}

// DetailPath is the single-view endpoint for a submission.
func DetailPath(id string) (string, error) {
	return route.Build(detailEndpoint, route.Params{route.ParamSubmissionID: id})
}

// AttachmentsPath lists the attachments of a submission.
func AttachmentsPath(id string) (string, error) {
	return route.Build(attachmentsEndpoint, route.Params{route.ParamSubmissionID: id})
}

// StatusesPath lists the server's status options.
func StatusesPath() string { return statusesEndpoint }

func itoa(id int) string { return strconv.Itoa(id) }
