package review

import (
	"sort"

	"github.com/joescharf/rq/internal/models"
)

// PartStatuses is the fixed status whitelist used in parts mode.
var PartStatuses = []models.ReviewStatus{
	models.ReviewStatusApproved,
	models.ReviewStatusRejected,
	models.ReviewStatusPendingReview,
}

// CanSubmit reports whether values may be submitted. Feedback only has to be
// non-empty; judging its content is left to the server.
func CanSubmit(mode Mode, values FormValues, readOnly, inFlight bool) bool {
	if inFlight || readOnly {
		return false
	}

	if mode == ModeSingle {
		return values.Status != "" && values.Feedback != ""
	}

	if len(values.PartsReviewStatus) == 0 {
		return false
	}
	for i, st := range values.PartsReviewStatus {
		switch st {
		case models.ReviewStatusApproved:
		case models.ReviewStatusRejected:
			if i >= len(values.PartsFeedback) || values.PartsFeedback[i] == "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// StatusOptions filters the server's options down to the whitelist and orders
// them by whitelist position. Parts mode always uses PartStatuses. An empty
// whitelist in single mode keeps every option in server order.
func StatusOptions(mode Mode, whitelist []models.ReviewStatus, options []models.StatusOption) []models.StatusOption {
	if mode == ModeParts {
		whitelist = PartStatuses
	}

	out := make([]models.StatusOption, 0, len(options))
	if len(whitelist) == 0 {
		return append(out, options...)
	}

	rank := make(map[models.ReviewStatus]int, len(whitelist))
	for i, st := range whitelist {
		if _, seen := rank[st]; !seen {
			rank[st] = i
		}
	}
	for _, o := range options {
		if _, ok := rank[o.Label]; ok {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank[out[i].Label] < rank[out[j].Label]
	})
	return out
}
