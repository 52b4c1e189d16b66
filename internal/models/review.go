package models

// StatusOption is one reviewer-selectable status as served by the statuses endpoint.
type StatusOption struct {
	Label ReviewStatus `json:"label"`
}

// StatusOptionList is the statuses endpoint envelope.
type StatusOptionList struct {
	Results []StatusOption `json:"results"`
}

// PartReview is the persisted verdict for one part.
type PartReview struct {
	Submission   int          `json:"submission"`
	Index        int          `json:"index"`
	ReviewStatus ReviewStatus `json:"reviewStatus"`
	Feedback     string       `json:"feedback"`
}

// ReviewPayload is the body of a review update. Either Status/Feedback or Parts is set.
type ReviewPayload struct {
	TimeElapsed int          `json:"timeElapsed"`
	Status      ReviewStatus `json:"status,omitempty"`
	Feedback    string       `json:"feedback,omitempty"`
	Parts       []PartReview `json:"parts,omitempty"`
}

// HasParts reports whether the payload reviews part by part.
func (p ReviewPayload) HasParts() bool {
	return len(p.Parts) > 0
}

// ErrorInfo is one user-facing message carried by a failed API call.
type ErrorInfo struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorResponse is the body of a failed API call.
type ErrorResponse struct {
	Info []ErrorInfo `json:"info"`
}

// DeriveStatus computes a submission status from its part verdicts: any rejection
// rejects the whole, unanimous approval approves it, anything else stays pending.
func DeriveStatus(parts []Part) ReviewStatus {
	if len(parts) == 0 {
		return ReviewStatusPendingReview
	}
	approved := 0
	for _, p := range parts {
		switch p.ReviewStatus {
		case ReviewStatusRejected:
			return ReviewStatusRejected
		case ReviewStatusApproved:
			approved++
		}
	}
	if approved == len(parts) {
		return ReviewStatusApproved
	}
	return ReviewStatusPendingReview
}
