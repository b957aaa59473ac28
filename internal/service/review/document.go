package review

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nmxmxh/peerdesk/internal/service/notification"
	errs "github.com/nmxmxh/peerdesk/pkg/errors"
)

// CreateDocument registers an uploaded document. It starts in AI_VERIFYING
// and waits for the automated check to report back.
func (s *Service) CreateDocument(ctx context.Context, actor Actor, title, specializationID string) (doc *Document, err error) {
	const op = "CreateDocument"
	ctx, span := s.startSpan(ctx, op)
	defer func() { s.finish(span, op, err) }()

	if actor.UserID == "" {
		return nil, errs.Forbidden(op, "authentication required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errs.Validation(op, "title is required")
	}
	now := s.clock()
	doc = &Document{
		ID:               uuid.NewString(),
		OwnerID:          actor.UserID,
		SpecializationID: strings.TrimSpace(specializationID),
		Title:            title,
		Status:           DocumentAIVerifying,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// CompleteVerification applies the automated check result.
func (s *Service) CompleteVerification(ctx context.Context, actor Actor, documentID string, passed bool) (doc *Document, err error) {
	const op = "CompleteVerification"
	ctx, span := s.startSpan(ctx, op, attribute.String("document_id", documentID), attribute.Bool("passed", passed))
	defer func() { s.finish(span, op, err) }()

	if !actor.Is(RoleSystem) && !actor.Is(RoleAdmin) {
		return nil, errs.Forbidden(op, "only the verification service may report results")
	}
	to := DocumentAIRejected
	if passed {
		to = DocumentPendingReview
	}
	doc, err = s.store.TransitionDocument(ctx, documentID, []DocumentStatus{DocumentAIVerifying}, to, s.clock())
	if err != nil {
		return nil, err
	}
	transitioned(op, string(to))

	typ := notification.TypeDocumentRejected
	if passed {
		typ = notification.TypeDocumentVerified
	}
	s.emit(ctx, typ, documentPayload(doc), doc.OwnerID)
	return doc, nil
}

// DecideApproval is the administrative step after a positive review.
func (s *Service) DecideApproval(ctx context.Context, actor Actor, documentID string, approve bool) (doc *Document, err error) {
	const op = "DecideApproval"
	ctx, span := s.startSpan(ctx, op, attribute.String("document_id", documentID), attribute.Bool("approve", approve))
	defer func() { s.finish(span, op, err) }()

	if !actor.CanAssign() {
		return nil, errs.Forbidden(op, "only administrators and organizations can approve documents")
	}
	to := DocumentRejected
	if approve {
		to = DocumentActive
	}
	doc, err = s.store.TransitionDocument(ctx, documentID, []DocumentStatus{DocumentPendingApprove}, to, s.clock())
	if err != nil {
		return nil, err
	}
	transitioned(op, string(to))

	typ := notification.TypeDocumentRejected
	if approve {
		typ = notification.TypeDocumentApproved
	}
	s.emit(ctx, typ, documentPayload(doc), doc.OwnerID)
	return doc, nil
}

// Deactivate places an active document on administrative hold.
func (s *Service) Deactivate(ctx context.Context, actor Actor, documentID string) (*Document, error) {
	return s.hold(ctx, actor, "Deactivate", documentID, DocumentActive, DocumentInactive)
}

// Reactivate lifts an administrative hold.
func (s *Service) Reactivate(ctx context.Context, actor Actor, documentID string) (*Document, error) {
	return s.hold(ctx, actor, "Reactivate", documentID, DocumentInactive, DocumentActive)
}

func (s *Service) hold(ctx context.Context, actor Actor, op, documentID string, from, to DocumentStatus) (doc *Document, err error) {
	ctx, span := s.startSpan(ctx, op, attribute.String("document_id", documentID))
	defer func() { s.finish(span, op, err) }()

	if !actor.Is(RoleAdmin) {
		return nil, errs.Forbidden(op, "only administrators can change a document hold")
	}
	doc, err = s.store.TransitionDocument(ctx, documentID, []DocumentStatus{from}, to, s.clock())
	if err != nil {
		return nil, err
	}
	transitioned(op, string(to))
	return doc, nil
}

// DeleteDocument removes a document from the workflow. A document under
// review loses its active request, which expires in the same unit of work.
func (s *Service) DeleteDocument(ctx context.Context, actor Actor, documentID string) (doc *Document, err error) {
	const op = "DeleteDocument"
	ctx, span := s.startSpan(ctx, op, attribute.String("document_id", documentID))
	defer func() { s.finish(span, op, err) }()

	current, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != actor.UserID && !actor.Is(RoleAdmin) {
		return nil, errs.Forbidden(op, "only the uploader or an administrator can delete a document")
	}
	if !CanTransition(current.Status, DocumentDeleted) {
		return nil, errs.InvalidState(op, "document %s is %s and cannot be deleted", documentID, current.Status)
	}
	doc, expired, err := s.store.DeleteDocument(ctx, documentID, s.clock())
	if err != nil {
		return nil, err
	}
	transitioned(op, string(DocumentDeleted))
	if expired != nil {
		transitioned(op, string(RequestExpired))
		s.emit(ctx, notification.TypeReviewExpired, requestPayload(doc, expired), expired.ReviewerID)
	}
	return doc, nil
}

func (s *Service) GetDocument(ctx context.Context, actor Actor, documentID string) (*Document, error) {
	if actor.UserID == "" {
		return nil, errs.Forbidden("GetDocument", "authentication required")
	}
	return s.store.GetDocument(ctx, documentID)
}

// GetRequest returns a request to its reviewer, the document's uploader or an
// assigner.
func (s *Service) GetRequest(ctx context.Context, actor Actor, requestID string) (*Request, error) {
	const op = "GetRequest"
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReviewerID == actor.UserID || actor.CanAssign() {
		return req, nil
	}
	doc, err := s.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != actor.UserID {
		return nil, errs.Forbidden(op, "request %s is not visible to this user", requestID)
	}
	return req, nil
}

// ListRequests returns the document's review history, oldest first.
func (s *Service) ListRequests(ctx context.Context, actor Actor, documentID string) ([]*Request, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != actor.UserID && !actor.CanAssign() {
		return nil, errs.Forbidden("ListRequests", "review history is not visible to this user")
	}
	return s.store.ListRequests(ctx, documentID)
}

// ListReviewerRequests returns the actor's own requests, newest first,
// optionally filtered by status.
func (s *Service) ListReviewerRequests(ctx context.Context, actor Actor, statuses []RequestStatus) ([]*Request, error) {
	if actor.UserID == "" {
		return nil, errs.Forbidden("ListReviewerRequests", "authentication required")
	}
	for _, st := range statuses {
		if !st.Valid() {
			return nil, errs.Validation("ListReviewerRequests", "unknown status %q", st)
		}
	}
	return s.store.ListReviewerRequests(ctx, actor.UserID, statuses)
}

// PutMember records a user's roles and specializations in the directory.
func (s *Service) PutMember(ctx context.Context, actor Actor, m *Member) error {
	const op = "PutMember"
	if !actor.Is(RoleAdmin) {
		return errs.Forbidden(op, "only administrators can edit the directory")
	}
	if strings.TrimSpace(m.UserID) == "" {
		return errs.Validation(op, "user_id is required")
	}
	m.UpdatedAt = s.clock()
	return s.directory.PutMember(ctx, m)
}
