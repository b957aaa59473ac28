package review

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/internal/service/notification"
	errs "github.com/nmxmxh/peerdesk/pkg/errors"
)

// Respond records the assigned reviewer's answer to a pending request.
func (s *Service) Respond(ctx context.Context, actor Actor, requestID string, action Action) (req *Request, err error) {
	const op = "Respond"
	ctx, span := s.startSpan(ctx, op,
		attribute.String("request_id", requestID),
		attribute.String("action", string(action)))
	defer func() { s.finish(span, op, err) }()

	if action != ActionAccept && action != ActionDecline {
		return nil, errs.Validation(op, "unknown action %q", action)
	}
	current, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current.ReviewerID != actor.UserID {
		return nil, errs.Forbidden(op, "request %s is assigned to another reviewer", requestID)
	}
	if current.Status != RequestPending {
		return nil, errs.InvalidState(op, "request %s is %s", requestID, current.Status)
	}
	now := s.clock()
	if current.Overdue(now) {
		return nil, errs.Expired(op, "the response window for request %s has closed", requestID)
	}

	t := Transition{
		RequestID: requestID,
		From:      RequestPending,
		Guard:     GuardOpen,
		At:        now,
	}
	if action == ActionAccept {
		deadline := now.Add(s.cfg.SubmitWindow)
		t.To = RequestAccepted
		t.SubmitDeadline = &deadline
	} else {
		t.To = RequestRejectedByReviewer
		t.DocumentFrom = DocumentReviewing
		t.DocumentTo = DocumentPendingReview
	}

	req, doc, err := s.store.Transition(ctx, t)
	if err != nil {
		return nil, err
	}
	transitioned(op, string(req.Status))

	payload := requestPayload(doc, req)
	if action == ActionAccept {
		payload["submit_deadline"] = *req.SubmitDeadline
		s.emit(ctx, notification.TypeReviewAccepted, payload, docOwner(doc))
	} else {
		recipients := append([]string{docOwner(doc)}, s.admins(ctx)...)
		s.emit(ctx, notification.TypeReviewDeclined, payload, recipients...)
	}
	return req, nil
}

// Submit records the reviewer's decision and report for an accepted request.
// An approval sends the document on to administrative approval; a rejection
// returns it to the review queue.
func (s *Service) Submit(ctx context.Context, actor Actor, requestID string, decision Decision, reportRef string) (req *Request, err error) {
	const op = "Submit"
	ctx, span := s.startSpan(ctx, op,
		attribute.String("request_id", requestID),
		attribute.String("decision", string(decision)))
	defer func() { s.finish(span, op, err) }()

	if !decision.Valid() {
		return nil, errs.Validation(op, "unknown decision %q", decision)
	}
	reportRef = strings.TrimSpace(reportRef)
	if reportRef == "" {
		return nil, errs.Validation(op, "a report is required")
	}
	current, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current.ReviewerID != actor.UserID {
		return nil, errs.Forbidden(op, "request %s is assigned to another reviewer", requestID)
	}
	if current.Status != RequestAccepted {
		return nil, errs.InvalidState(op, "request %s is %s", requestID, current.Status)
	}
	now := s.clock()
	if current.Overdue(now) {
		return nil, errs.Expired(op, "the review window for request %s has closed", requestID)
	}
	if s.verifier != nil {
		if !strings.HasPrefix(reportRef, ReportPrefix(requestID)) {
			return nil, errs.Validation(op, "report %s was not uploaded for request %s", reportRef, requestID)
		}
		ok, vErr := s.verifier.Exists(ctx, reportRef)
		if vErr != nil {
			return nil, errs.Internal(op, vErr)
		}
		if !ok {
			return nil, errs.Validation(op, "report %s has not been uploaded", reportRef)
		}
	}

	docTo := DocumentPendingReview
	if decision == DecisionApproved {
		docTo = DocumentPendingApprove
	}
	req, doc, err := s.store.Transition(ctx, Transition{
		RequestID:    requestID,
		From:         RequestAccepted,
		To:           RequestCompleted,
		Guard:        GuardOpen,
		At:           now,
		Decision:     &decision,
		ReportRef:    reportRef,
		DocumentFrom: DocumentReviewing,
		DocumentTo:   docTo,
	})
	if err != nil {
		return nil, err
	}
	transitioned(op, string(req.Status))
	s.log.Info("Review submitted",
		zap.String("request_id", req.ID),
		zap.String("document_id", req.DocumentID),
		zap.String("decision", string(decision)))

	payload := requestPayload(doc, req)
	payload["report_ref"] = req.ReportRef
	s.emit(ctx, notification.TypeReviewCompleted, payload, docOwner(doc))
	if decision == DecisionApproved {
		s.emit(ctx, notification.TypeDocumentApproval, payload, s.admins(ctx)...)
	}
	return req, nil
}

func docOwner(doc *Document) string {
	if doc == nil {
		return ""
	}
	return doc.OwnerID
}

// AuthorizeReportUpload checks that actor may upload the report for an
// accepted request that is still inside its submit window.
func (s *Service) AuthorizeReportUpload(ctx context.Context, actor Actor, requestID string) (*Request, error) {
	const op = "AuthorizeReportUpload"
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReviewerID != actor.UserID {
		return nil, errs.Forbidden(op, "request %s is assigned to another reviewer", requestID)
	}
	if req.Status != RequestAccepted {
		return nil, errs.InvalidState(op, "request %s is %s", requestID, req.Status)
	}
	if req.Overdue(s.clock()) {
		return nil, errs.Expired(op, "the review window for request %s has closed", requestID)
	}
	return req, nil
}
