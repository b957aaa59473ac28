package review

import (
	"time"
)

type DocumentStatus string

const (
	DocumentAIVerifying    DocumentStatus = "AI_VERIFYING"
	DocumentAIRejected     DocumentStatus = "AI_REJECTED"
	DocumentPendingReview  DocumentStatus = "PENDING_REVIEW"
	DocumentReviewing      DocumentStatus = "REVIEWING"
	DocumentPendingApprove DocumentStatus = "PENDING_APPROVE"
	DocumentActive         DocumentStatus = "ACTIVE"
	DocumentRejected       DocumentStatus = "REJECTED"
	DocumentInactive       DocumentStatus = "INACTIVE"
	DocumentDeleted        DocumentStatus = "DELETED"
)

type RequestStatus string

const (
	RequestPending            RequestStatus = "PENDING"
	RequestAccepted           RequestStatus = "ACCEPTED"
	RequestRejectedByReviewer RequestStatus = "REJECTED_BY_REVIEWER"
	RequestExpired            RequestStatus = "EXPIRED"
	RequestCompleted          RequestStatus = "COMPLETED"
)

// Decision is the reviewer's verdict on a document.
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Action is a reviewer's answer to a pending request.
type Action string

const (
	ActionAccept  Action = "ACCEPT"
	ActionDecline Action = "DECLINE"
)

// Document is the reviewed artifact. The upload itself lives elsewhere; this
// record only tracks where the document is in the workflow.
type Document struct {
	ID               string         `json:"id"`
	OwnerID          string         `json:"owner_id"`
	SpecializationID string         `json:"specialization_id,omitempty"`
	Title            string         `json:"title"`
	Status           DocumentStatus `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (d *Document) Clone() *Document {
	c := *d
	return &c
}

// Request is one assignment of a document to a reviewer. Requests are never
// deleted; a document's past requests form its review history.
type Request struct {
	ID              string        `json:"id"`
	DocumentID      string        `json:"document_id"`
	ReviewerID      string        `json:"reviewer_id"`
	Status          RequestStatus `json:"status"`
	Note            string        `json:"note,omitempty"`
	RespondDeadline time.Time     `json:"respond_deadline"`
	SubmitDeadline  *time.Time    `json:"submit_deadline,omitempty"`
	Decision        *Decision     `json:"decision,omitempty"`
	ReportRef       string        `json:"report_ref,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (r *Request) Clone() *Request {
	c := *r
	if r.SubmitDeadline != nil {
		t := *r.SubmitDeadline
		c.SubmitDeadline = &t
	}
	if r.Decision != nil {
		d := *r.Decision
		c.Decision = &d
	}
	return &c
}

// Deadline returns the deadline that applies in the request's current status
// and whether there is one.
func (r *Request) Deadline() (time.Time, bool) {
	switch r.Status {
	case RequestPending:
		return r.RespondDeadline, true
	case RequestAccepted:
		if r.SubmitDeadline != nil {
			return *r.SubmitDeadline, true
		}
	}
	return time.Time{}, false
}

// Overdue reports whether the request's current deadline has passed at now.
func (r *Request) Overdue(now time.Time) bool {
	d, ok := r.Deadline()
	return ok && !now.Before(d)
}

// ReportPrefix is the object key prefix that report artifacts for requestID
// are uploaded under.
func ReportPrefix(requestID string) string {
	return "reports/" + requestID + "/"
}

// Role names carried by an Actor.
const (
	RoleReader       = "reader"
	RoleReviewer     = "reviewer"
	RoleOrganization = "organization"
	RoleAdmin        = "admin"
	RoleSystem       = "system"
)

// Actor is the authenticated caller of a workflow operation.
type Actor struct {
	UserID string
	Roles  []string
}

func (a Actor) Is(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanAssign reports whether the actor may route documents to reviewers and
// take approval decisions.
func (a Actor) CanAssign() bool {
	return a.Is(RoleAdmin) || a.Is(RoleOrganization)
}

// Member is a directory entry: a user's roles and, for reviewers, the
// specializations they may review.
type Member struct {
	UserID          string    `json:"user_id"`
	Roles           []string  `json:"roles"`
	Specializations []string  `json:"specializations"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (m *Member) HasRole(role string) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (m *Member) Covers(specializationID string) bool {
	for _, s := range m.Specializations {
		if s == specializationID {
			return true
		}
	}
	return false
}

func (m *Member) Clone() *Member {
	c := *m
	c.Roles = append([]string(nil), m.Roles...)
	c.Specializations = append([]string(nil), m.Specializations...)
	return &c
}

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
