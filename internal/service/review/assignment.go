package review

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nmxmxh/peerdesk/internal/service/notification"
	errs "github.com/nmxmxh/peerdesk/pkg/errors"
)

// CreateReviewRequest assigns a document awaiting review to a reviewer. The
// document moves to REVIEWING and the request is created PENDING in one unit
// of work.
func (s *Service) CreateReviewRequest(ctx context.Context, actor Actor, documentID, reviewerID, note string) (req *Request, err error) {
	const op = "CreateReviewRequest"
	ctx, span := s.startSpan(ctx, op,
		attribute.String("document_id", documentID),
		attribute.String("reviewer_id", reviewerID))
	defer func() { s.finish(span, op, err) }()

	if !actor.CanAssign() {
		return nil, errs.Forbidden(op, "only administrators and organizations can assign reviewers")
	}
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return nil, errs.Validation(op, "reviewer_id is required")
	}

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	switch doc.Status {
	case DocumentPendingReview:
	case DocumentReviewing:
		return nil, errs.Conflict(op, "document %s is already under review", documentID)
	default:
		return nil, errs.InvalidState(op, "document %s is %s and cannot be assigned", documentID, doc.Status)
	}
	if reviewerID == doc.OwnerID {
		return nil, errs.Validation(op, "the uploader cannot review their own document")
	}
	if err := s.policy.CheckReviewer(ctx, doc, reviewerID); err != nil {
		return nil, err
	}
	if _, err := s.store.ActiveRequest(ctx, documentID); err == nil {
		return nil, errs.Conflict(op, "document %s already has an active review request", documentID)
	} else if !errs.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	now := s.clock()
	req = &Request{
		ID:              uuid.NewString(),
		DocumentID:      documentID,
		ReviewerID:      reviewerID,
		Status:          RequestPending,
		Note:            strings.TrimSpace(note),
		RespondDeadline: now.Add(s.cfg.RespondWindow),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	doc, err = s.store.Assign(ctx, req)
	if err != nil {
		return nil, err
	}
	transitioned(op, string(RequestPending))

	payload := requestPayload(doc, req)
	payload["respond_deadline"] = req.RespondDeadline
	s.emit(ctx, notification.TypeReviewRequest, payload, reviewerID)
	s.emit(ctx, notification.TypeReviewAssigned, payload, doc.OwnerID)
	return req, nil
}
