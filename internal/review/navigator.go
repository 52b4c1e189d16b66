package review

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/joescharf/rq/internal/logging"
	"github.com/joescharf/rq/internal/models"
	"github.com/joescharf/rq/internal/route"
)

// Router moves the view to another path.
type Router interface {
	Go(path string)
}

// Target is a neighbor submission. Present is false when there is none.
type Target struct {
	ID      int
	Present bool
}

// Navigator derives neighbors of the current submission in a sibling list.
// The ends of the list are hard stops.
type Navigator struct {
	router   Router
	template string
	params   route.Params
	log      zerolog.Logger

	next, previous Target
}

// NewNavigator locates currentID in siblings by numeric comparison. A
// non-numeric or missing id leaves both neighbors absent. params supplies
// projectId and batchId for path building.
func NewNavigator(siblings []*models.SubmissionSummary, currentID string, router Router, template string, params route.Params) *Navigator {
	n := &Navigator{
		router:   router,
		template: template,
		params:   params,
		log:      logging.Component("review"),
	}

	id, err := strconv.Atoi(currentID)
	if err != nil {
		return n
	}
	for i, s := range siblings {
		if s == nil || s.ID != id {
			continue
		}
		if i+1 < len(siblings) {
			n.next = targetOf(siblings[i+1])
		}
		if i >= 1 {
			n.previous = targetOf(siblings[i-1])
		}
		break
	}
	return n
}

// targetOf treats a missing summary or a zero id as no neighbor.
func targetOf(s *models.SubmissionSummary) Target {
	if s == nil || s.ID == 0 {
		return Target{}
	}
	return Target{ID: s.ID, Present: true}
}

func (n *Navigator) Next() Target      { return n.next }
func (n *Navigator) Previous() Target  { return n.previous }
func (n *Navigator) HasNext() bool     { return n.next.Present }
func (n *Navigator) HasPrevious() bool { return n.previous.Present }

// GoToNext navigates to the next sibling, or returns ErrNoTarget.
func (n *Navigator) GoToNext() error { return n.goTo(n.next) }

// GoToPrevious navigates to the previous sibling, or returns ErrNoTarget.
func (n *Navigator) GoToPrevious() error { return n.goTo(n.previous) }

// AdvanceOnSuccess moves to the next sibling if there is one and reports
// whether it did.
func (n *Navigator) AdvanceOnSuccess() bool {
	if !n.next.Present {
		return false
	}
	if err := n.goTo(n.next); err != nil {
		n.log.Warn().Err(err).Int("target", n.next.ID).Msg("auto-advance failed")
		return false
	}
	return true
}

// PathTo builds the navigation path for t.
func (n *Navigator) PathTo(t Target) (string, error) {
	if !t.Present {
		return "", ErrNoTarget
	}
	params := route.Params{}
	for k, v := range n.params {
		params[k] = v
	}
	params[route.ParamSubmissionID] = itoa(t.ID)
	path, err := route.Build(n.template, params)
	if err != nil {
		return "", fmt.Errorf("build path to submission %d: %w", t.ID, err)
	}
	return path, nil
}

func (n *Navigator) goTo(t Target) error {
	path, err := n.PathTo(t)
	if err != nil {
		return err
	}
	n.router.Go(path)
	return nil
}
