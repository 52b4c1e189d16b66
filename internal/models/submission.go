package models

import (
	"encoding/json"
	"sort"
	"time"
)

// ReviewStatus is the verdict on a submission or one of its parts.
// The empty value stands for "not reviewed yet" (null on the wire).
type ReviewStatus string

const (
	ReviewStatusApproved      ReviewStatus = "APPROVED"
	ReviewStatusRejected      ReviewStatus = "REJECTED"
	ReviewStatusPendingReview ReviewStatus = "PENDING_REVIEW"
)

// ReviewStatuses lists every status a reviewer may assign, in display order.
var ReviewStatuses = []ReviewStatus{
	ReviewStatusApproved,
	ReviewStatusRejected,
	ReviewStatusPendingReview,
}

// Valid reports whether s is one of the known review statuses.
func (s ReviewStatus) Valid() bool {
	for _, known := range ReviewStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// InterfaceType is the labeling interface a submission was produced with.
type InterfaceType string

const (
	InterfaceTypeXML         InterfaceType = "XML"
	InterfaceTypeFormBuilder InterfaceType = "FORM_BUILDER"
	InterfaceTypeLabelStudio InterfaceType = "LABEL_STUDIO"
)

// Person is a lightweight reference to a worker or project owner.
type Person struct {
	ID             int    `json:"id" yaml:"id"`
	FirstName      string `json:"firstName" yaml:"first_name"`
	LastName       string `json:"lastName" yaml:"last_name"`
	ProfilePicture string `json:"profilePicture,omitempty" yaml:"profile_picture"`
}

// FullName joins first and last name, tolerating missing halves.
func (p *Person) FullName() string {
	if p == nil {
		return ""
	}
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Part is an independently reviewed sub-unit of a submission.
type Part struct {
	Index        int          `json:"index" yaml:"index"`
	ReviewStatus ReviewStatus `json:"reviewStatus" yaml:"review_status"`
	Feedback     string       `json:"feedback" yaml:"feedback"`
}

// Submission is a unit of submitted work awaiting review.
type Submission struct {
	ID                      int             `json:"id"`
	ProjectID               string          `json:"projectId"`
	BatchID                 string          `json:"batchId"`
	Title                   string          `json:"title"`
	Description             string          `json:"description"`
	Status                  ReviewStatus    `json:"status"`
	Feedback                string          `json:"feedback"`
	Parts                   []Part          `json:"parts"`
	TimeElapsed             int             `json:"timeElapsed"`
	Worker                  *Person         `json:"worker,omitempty"`
	ProjectOwner            *Person         `json:"projectOwner,omitempty"`
	InterfaceType           InterfaceType   `json:"interfaceType"`
	InternalComsChannelLink string          `json:"internalComsChannelLink,omitempty"`
	Instructions            json.RawMessage `json:"instructions,omitempty"`
	LabelingConfig          json.RawMessage `json:"labelingConfig,omitempty"`
	TaskData                json.RawMessage `json:"taskData,omitempty"`
	Data                    json.RawMessage `json:"data,omitempty"`
	CreatedAt               time.Time       `json:"createdAt"`
	UpdatedAt               time.Time       `json:"updatedAt"`
}

// HasParts reports whether the submission is reviewed part by part.
func (s *Submission) HasParts() bool {
	return len(s.Parts) > 0
}

// SortParts orders parts ascending by index in place. Arrival order is not trusted.
func SortParts(parts []Part) {
	sort.SliceStable(parts, func(i, j int) bool {
		return parts[i].Index < parts[j].Index
	})
}

// SubmissionSummary is the list-view projection of a submission.
type SubmissionSummary struct {
	ID        int          `json:"id"`
	Title     string       `json:"title"`
	Status    ReviewStatus `json:"status"`
	Worker    *Person      `json:"worker,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// SubmissionList is the list endpoint envelope.
type SubmissionList struct {
	Count   int                  `json:"count"`
	Results []*SubmissionSummary `json:"results"`
}
