package store

import (
	"context"
	"errors"

	"github.com/joescharf/rq/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SubmissionListFilter specifies filters for listing submissions.
type SubmissionListFilter struct {
	ProjectID string
	BatchID   string
	Status    models.ReviewStatus
}

// Store defines the persistence interface for rq.
type Store interface {
	// Submissions
	CreateSubmission(ctx context.Context, s *models.Submission) error
	GetSubmission(ctx context.Context, id int) (*models.Submission, error)
	ListSubmissions(ctx context.Context, filter SubmissionListFilter) ([]*models.SubmissionSummary, error)
	ReviewSubmission(ctx context.Context, id int, review models.ReviewPayload) (*models.Submission, error)
	DeleteSubmission(ctx context.Context, id int) error

	// Attachments
	CreateAttachment(ctx context.Context, a *models.Attachment) error
	ListAttachments(ctx context.Context, submissionID int) ([]*models.Attachment, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
