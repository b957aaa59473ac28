package review

import (
	"context"

	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/internal/service/notification"
	errs "github.com/nmxmxh/peerdesk/pkg/errors"
)

func requestPayload(doc *Document, r *Request) map[string]interface{} {
	p := map[string]interface{}{
		"request_id":  r.ID,
		"document_id": r.DocumentID,
		"reviewer_id": r.ReviewerID,
		"status":      string(r.Status),
	}
	if doc != nil {
		p["title"] = doc.Title
		p["document_status"] = string(doc.Status)
	}
	if r.Decision != nil {
		p["decision"] = string(*r.Decision)
	}
	return p
}

func documentPayload(doc *Document) map[string]interface{} {
	return map[string]interface{}{
		"document_id":     doc.ID,
		"title":           doc.Title,
		"document_status": string(doc.Status),
	}
}

// emit publishes one event per distinct recipient. Failures are logged and
// swallowed, and cancelling ctx does not stop delivery: the transition has
// already committed.
func (s *Service) emit(ctx context.Context, typ notification.EventType, payload map[string]interface{}, recipients ...string) {
	if s.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	seen := make(map[string]struct{}, len(recipients))
	for _, to := range recipients {
		if to == "" {
			continue
		}
		if _, dup := seen[to]; dup {
			continue
		}
		seen[to] = struct{}{}
		e := &notification.Event{Type: typ, RecipientUserID: to, Payload: clonePayload(payload)}
		if err := s.notifier.Publish(ctx, e); err != nil {
			_ = errs.LogWithError(ctx, s.log, "Failed to publish notification", err,
				zap.String("type", string(typ)),
				zap.String("recipient", to))
		}
	}
}

// admins lists administrator ids, logging rather than failing on lookup
// errors.
func (s *Service) admins(ctx context.Context) []string {
	ids, err := s.directory.Admins(context.WithoutCancel(ctx))
	if err != nil {
		s.log.Warn("Failed to list administrators", zap.Error(err))
		return nil
	}
	return ids
}

func clonePayload(p map[string]interface{}) map[string]interface{} {
	c := make(map[string]interface{}, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}
