package review

import "github.com/joescharf/rq/internal/models"

// Mode selects between a whole-submission verdict and per-part verdicts.
type Mode int

const (
	ModeSingle Mode = iota
	ModeParts
)

// ModeOf is the one place the single/parts decision is made.
func ModeOf(s *models.Submission) Mode {
	if s != nil && len(s.Parts) > 0 {
		return ModeParts
	}
	return ModeSingle
}

func (m Mode) String() string {
	if m == ModeParts {
		return "parts"
	}
	return "single"
}

// FormValues is the reviewer's in-progress verdict. Status and Feedback are used
// in single mode, the Parts slices (aligned with the sorted parts) in parts mode.
type FormValues struct {
	Status   models.ReviewStatus
	Feedback string

	PartsReviewStatus []models.ReviewStatus
	PartsFeedback     []string
}

// NewFormValues seeds form values from the submission's saved state. Parts must
// already be sorted. Unreviewed parts start as PENDING_REVIEW.
func NewFormValues(s *models.Submission) FormValues {
	if ModeOf(s) == ModeSingle {
		if s == nil {
			return FormValues{}
		}
		return FormValues{Status: s.Status, Feedback: s.Feedback}
	}

	v := FormValues{
		PartsReviewStatus: make([]models.ReviewStatus, len(s.Parts)),
		PartsFeedback:     make([]string, len(s.Parts)),
	}
	for i, p := range s.Parts {
		st := p.ReviewStatus
		if st == "" {
			st = models.ReviewStatusPendingReview
		}
		v.PartsReviewStatus[i] = st
		v.PartsFeedback[i] = p.Feedback
	}
	return v
}

func (v FormValues) clone() FormValues {
	out := v
	out.PartsReviewStatus = append([]models.ReviewStatus(nil), v.PartsReviewStatus...)
	out.PartsFeedback = append([]string(nil), v.PartsFeedback...)
	return out
}
