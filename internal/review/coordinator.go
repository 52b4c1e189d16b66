package review

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/joescharf/rq/internal/logging"
	"github.com/joescharf/rq/internal/models"
	"github.com/joescharf/rq/internal/mutation"
	"github.com/joescharf/rq/internal/notify"
)

// Mutator runs one write at a time.
type Mutator interface {
	Trigger(ctx context.Context, req mutation.Request, cb mutation.Callbacks) error
	InFlight() bool
}

// Refresher revalidates cached paths without waiting.
type Refresher interface {
	Refresh(paths ...string)
}

// Advancer moves to the next sibling after a save.
type Advancer interface {
	AdvanceOnSuccess() bool
}

// Coordinator saves a verdict and sequences what follows: notify, refresh the
// list view, then advance.
type Coordinator struct {
	mutator  Mutator
	cache    Refresher
	notifier notify.Notifier
	advancer Advancer

	detailPath     string
	listPath       string
	successMessage string

	log zerolog.Logger
}

// NewCoordinator wires a coordinator for the submission at detailPath whose
// list view lives at listPath.
func NewCoordinator(m Mutator, cache Refresher, n notify.Notifier, adv Advancer, detailPath, listPath, successMessage string) *Coordinator {
	if successMessage == "" {
		successMessage = DefaultSuccessMessage
	}
	return &Coordinator{
		mutator:        m,
		cache:          cache,
		notifier:       n,
		advancer:       adv,
		detailPath:     detailPath,
		listPath:       listPath,
		successMessage: successMessage,
		log:            logging.Component("review"),
	}
}

// BuildPayload packages values for sub. Parts mode walks sub.Parts in their
// in-memory order, which must already be sorted. Each part is addressed by its
// stored Index, since the server resolves parts by index rather than position.
func BuildPayload(sub *models.Submission, mode Mode, values FormValues) models.ReviewPayload {
	p := models.ReviewPayload{TimeElapsed: sub.TimeElapsed}
	if mode == ModeSingle {
		p.Status = values.Status
		p.Feedback = values.Feedback
		return p
	}

	p.Parts = make([]models.PartReview, 0, len(sub.Parts))
	for i, part := range sub.Parts {
		pr := models.PartReview{Submission: sub.ID, Index: part.Index}
		if i < len(values.PartsReviewStatus) {
			pr.ReviewStatus = values.PartsReviewStatus[i]
		}
		if i < len(values.PartsFeedback) {
			pr.Feedback = values.PartsFeedback[i]
		}
		p.Parts = append(p.Parts, pr)
	}
	return p
}

// Submit issues one PUT with the verdict. On success it returns the saved
// submission after notifying, refreshing and advancing. On failure every info
// item becomes one notification and nothing else happens. A submit while
// another is in flight returns mutation.ErrInFlight without side effects.
func (c *Coordinator) Submit(ctx context.Context, sub *models.Submission, mode Mode, values FormValues) (*models.Submission, error) {
	if c.mutator.InFlight() {
		return nil, mutation.ErrInFlight
	}

	var saved *models.Submission
	req := mutation.Request{
		Method: http.MethodPut,
		Path:   c.detailPath,
		Body:   BuildPayload(sub, mode, values),
	}
	err := c.mutator.Trigger(ctx, req, mutation.Callbacks{
		OnSuccess: func(data json.RawMessage) {
			saved = decodeSubmission(data)
			c.notifier.Notify(notify.Notification{Message: c.successMessage, Type: notify.TypeSuccess})
			c.cache.Refresh(c.listPath)
			if !c.advancer.AdvanceOnSuccess() {
				c.log.Debug().Int("submission", sub.ID).Msg("no next submission, staying")
			}
		},
		OnError: func(info []models.ErrorInfo) {
			for _, n := range notify.FromInfo(info) {
				c.notifier.Notify(n)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func decodeSubmission(data json.RawMessage) *models.Submission {
	if len(data) == 0 {
		return nil
	}
	var s models.Submission
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	models.SortParts(s.Parts)
	return &s
}
