// Package review coordinates one mounted submission review: which sibling list
// to navigate, whether the form may be submitted, and what happens after a
// verdict is saved.
package review

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/joescharf/rq/internal/models"
	"github.com/joescharf/rq/internal/route"
)

var (
	// ErrNoTarget is returned by user navigation when there is no neighbor.
	ErrNoTarget = errors.New("no submission in that direction")
	// ErrNotSubmittable is returned by Submit when the gate is closed.
	ErrNotSubmittable = errors.New("review is not ready to submit")
)

// DefaultSuccessMessage is shown after a verdict is saved.
const DefaultSuccessMessage = "Review saved"

// Config holds reviewer preferences.
type Config struct {
	PathTemplate     string
	ValidStatuses    []models.ReviewStatus
	SuccessMessage   string
	ReadOnlyStatuses []models.ReviewStatus
}

// DefaultConfig returns the review config, reading from viper when available.
func DefaultConfig() Config {
	tmpl := viper.GetString("review.path_template")
	if tmpl == "" {
		tmpl = route.DefaultSubmissionPath
	}

	msg := viper.GetString("review.success_message")
	if msg == "" {
		msg = DefaultSuccessMessage
	}

	return Config{
		PathTemplate:     tmpl,
		ValidStatuses:    parseStatuses(viper.GetStringSlice("review.valid_statuses")),
		SuccessMessage:   msg,
		ReadOnlyStatuses: parseStatuses(viper.GetStringSlice("review.read_only_statuses")),
	}
}

// Validate lists settings a review session could not work with.
func (c Config) Validate() []string {
	var problems []string

	sample := route.Params{route.ParamProjectID: "p", route.ParamBatchID: "b", route.ParamSubmissionID: "1"}
	path, err := route.Build(c.PathTemplate, sample)
	if err != nil {
		problems = append(problems, err.Error())
	} else if got, ok := route.Match(c.PathTemplate, path); !ok || got[route.ParamSubmissionID] != "1" {
		problems = append(problems, fmt.Sprintf("path template %q does not carry {%s}", c.PathTemplate, route.ParamSubmissionID))
	}

	for _, group := range []struct {
		key      string
		statuses []models.ReviewStatus
	}{
		{"review.valid_statuses", c.ValidStatuses},
		{"review.read_only_statuses", c.ReadOnlyStatuses},
	} {
		for _, st := range group.statuses {
			if !st.Valid() {
				problems = append(problems, fmt.Sprintf("%s: unknown status %q", group.key, st))
			}
		}
	}
	return problems
}

// ReadOnlyWhen returns a predicate that marks submissions already in one of
// statuses as read-only. No statuses means nothing is read-only.
func ReadOnlyWhen(statuses []models.ReviewStatus) func(*models.Submission) bool {
	if len(statuses) == 0 {
		return nil
	}
	return func(s *models.Submission) bool {
		for _, st := range statuses {
			if s.Status == st {
				return true
			}
		}
		return false
	}
}

// parseStatuses upper-cases and drops blanks. Nil in, nil out.
func parseStatuses(raw []string) []models.ReviewStatus {
	var out []models.ReviewStatus
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part != "" {
				out = append(out, models.ReviewStatus(part))
			}
		}
	}
	return out
}
