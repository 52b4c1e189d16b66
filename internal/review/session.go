package review

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/rq/internal/logging"
	"github.com/joescharf/rq/internal/models"
	"github.com/joescharf/rq/internal/mutation"
	"github.com/joescharf/rq/internal/notify"
	"github.com/joescharf/rq/internal/querycache"
	"github.com/joescharf/rq/internal/route"
)

// Cache is the query cache as seen by a review session.
type Cache interface {
	Get(ctx context.Context, path string) querycache.Result
	Cached(key string) querycache.Result
	Prefetch(ctx context.Context, path string)
	Peek(path string) querycache.Result
	Refresh(paths ...string)
}

// Deps are the collaborators a session talks to.
type Deps struct {
	Cache    Cache
	Mutator  Mutator
	Router   Router
	Notifier notify.Notifier
}

// Params identify the submission and carry the caller's hooks.
type Params struct {
	ProjectID    string
	BatchID      string
	SubmissionID string

	// PathTemplate builds navigation paths. Defaults to route.DefaultSubmissionPath.
	PathTemplate string
	// ListCacheKey is where a prior list view stored its list. Defaults to the
	// list endpoint.
	ListCacheKey string
	// ValidStatuses whitelists status options in single mode.
	ValidStatuses []models.ReviewStatus
	// ReadOnly is evaluated once against the loaded submission.
	ReadOnly       func(*models.Submission) bool
	SuccessMessage string
}

// Session is one mounted review view. It is owned by a single goroutine.
type Session struct {
	deps   Deps
	params Params
	log    zerolog.Logger

	sub      *models.Submission
	mode     Mode
	readOnly bool
	values   FormValues

	siblings    []*models.SubmissionSummary
	siblingsErr error
	nav         *Navigator
	coord       *Coordinator

	attachmentsPath string
}

// Mount loads the submission and its sibling list concurrently and starts the
// attachments fetch in the background. Only a failed submission load is fatal.
func Mount(ctx context.Context, deps Deps, p Params) (*Session, error) {
	if p.PathTemplate == "" {
		p.PathTemplate = route.DefaultSubmissionPath
	}

	detailPath, err := DetailPath(p.SubmissionID)
	if err != nil {
		return nil, err
	}
	listPath, err := ListPath(p.ProjectID, p.BatchID)
	if err != nil {
		return nil, err
	}
	attPath, err := AttachmentsPath(p.SubmissionID)
	if err != nil {
		return nil, err
	}
	cacheKey := p.ListCacheKey
	if cacheKey == "" {
		cacheKey = listPath
	}

	s := &Session{
		deps:            deps,
		params:          p,
		log:             logging.Component("review"),
		attachmentsPath: attPath,
	}

	deps.Cache.Prefetch(ctx, attPath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r := deps.Cache.Get(gctx, detailPath)
		if r.Err != nil {
			return fmt.Errorf("load submission %s: %w", p.SubmissionID, r.Err)
		}
		var sub models.Submission
		if err := json.Unmarshal(r.Data, &sub); err != nil {
			return fmt.Errorf("decode submission %s: %w", p.SubmissionID, err)
		}
		s.sub = &sub
		return nil
	})
	g.Go(func() error {
		s.siblings, s.siblingsErr = ResolveSiblings(gctx, deps.Cache, cacheKey, listPath)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if s.siblingsErr != nil {
		s.log.Warn().Err(s.siblingsErr).Msg("sibling list unavailable, navigation disabled")
	}

	models.SortParts(s.sub.Parts)
	s.mode = ModeOf(s.sub)
	s.readOnly = p.ReadOnly != nil && p.ReadOnly(s.sub)
	s.values = NewFormValues(s.sub)

	s.nav = NewNavigator(s.siblings, p.SubmissionID, deps.Router, p.PathTemplate, route.Params{
		route.ParamProjectID: p.ProjectID,
		route.ParamBatchID:   p.BatchID,
	})
	s.coord = NewCoordinator(deps.Mutator, deps.Cache, deps.Notifier, s.nav, detailPath, listPath, p.SuccessMessage)

	s.log.Debug().
		Int("submission", s.sub.ID).
		Str("mode", s.mode.String()).
		Bool("read_only", s.readOnly).
		Int("siblings", len(s.siblings)).
		Msg("mounted")
	return s, nil
}

func (s *Session) Submission() *models.Submission        { return s.sub }
func (s *Session) Mode() Mode                            { return s.mode }
func (s *Session) ReadOnly() bool                        { return s.readOnly }
func (s *Session) Siblings() []*models.SubmissionSummary { return s.siblings }
func (s *Session) SiblingsErr() error                    { return s.siblingsErr }
func (s *Session) Values() FormValues                    { return s.values.clone() }
func (s *Session) SetStatus(st models.ReviewStatus)      { s.values.Status = st }
func (s *Session) SetFeedback(fb string)                 { s.values.Feedback = fb }
func (s *Session) Next() Target                          { return s.nav.Next() }
func (s *Session) Previous() Target                      { return s.nav.Previous() }
func (s *Session) HasNext() bool                         { return s.nav.HasNext() }
func (s *Session) HasPrevious() bool                     { return s.nav.HasPrevious() }
func (s *Session) GoToNext() error                       { return s.nav.GoToNext() }
func (s *Session) GoToPrevious() error                   { return s.nav.GoToPrevious() }
func (s *Session) PathTo(t Target) (string, error)       { return s.nav.PathTo(t) }
func (s *Session) InFlight() bool                        { return s.deps.Mutator.InFlight() }

// SetPart sets the verdict for the i-th part in display order.
func (s *Session) SetPart(i int, st models.ReviewStatus, feedback string) error {
	if s.mode != ModeParts || i < 0 || i >= len(s.values.PartsReviewStatus) {
		return fmt.Errorf("part %d out of range", i)
	}
	s.values.PartsReviewStatus[i] = st
	s.values.PartsFeedback[i] = feedback
	return nil
}

// CanSubmit reports whether the current values may be submitted now.
func (s *Session) CanSubmit() bool {
	return CanSubmit(s.mode, s.values, s.readOnly, s.deps.Mutator.InFlight())
}

// Attachments returns the partitioned attachments. Both buckets are nil while
// the fetch is pending or failed; err carries the failure.
func (s *Session) Attachments() (task, submission []*models.Attachment, err error) {
	r := s.deps.Cache.Peek(s.attachmentsPath)
	if r.Loading || !r.Present() {
		return nil, nil, r.Err
	}
	var list []*models.Attachment
	if err := json.Unmarshal(r.Data, &list); err != nil {
		return nil, nil, fmt.Errorf("decode attachments: %w", err)
	}
	if list == nil {
		list = []*models.Attachment{}
	}
	task, submission = PartitionAttachments(list)
	return task, submission, nil
}

// StatusOptions fetches the server's status options and applies the whitelist
// for the current mode.
func (s *Session) StatusOptions(ctx context.Context) ([]models.StatusOption, error) {
	r := s.deps.Cache.Get(ctx, StatusesPath())
	if r.Err != nil {
		return nil, fmt.Errorf("fetch status options: %w", r.Err)
	}
	var list models.StatusOptionList
	if err := json.Unmarshal(r.Data, &list); err != nil {
		return nil, fmt.Errorf("decode status options: %w", err)
	}
	return StatusOptions(s.mode, s.params.ValidStatuses, list.Results), nil
}

// Submit saves the current values when the gate is open. On success the
// session shows the saved submission.
func (s *Session) Submit(ctx context.Context) error {
	if !s.CanSubmit() {
		if s.deps.Mutator.InFlight() {
			return mutation.ErrInFlight
		}
		return ErrNotSubmittable
	}
	saved, err := s.coord.Submit(ctx, s.sub, s.mode, s.values)
	if err != nil {
		return err
	}
	if saved != nil {
		s.sub = saved
	}
	return nil
}
