package review

import (
	"context"
	"sort"
	"sync"
	"time"

	errs "github.com/nmxmxh/peerdesk/pkg/errors"
)

// Guard constrains a request transition by the deadline of its From status.
type Guard int

const (
	GuardNone Guard = iota
	// GuardOpen requires the deadline to be strictly after At.
	GuardOpen
	// GuardLapsed requires the deadline to be at or before At.
	GuardLapsed
)

// Transition is one conditional request update, optionally paired with a
// document status change that commits or fails with it.
type Transition struct {
	RequestID string
	From      RequestStatus
	To        RequestStatus
	Guard     Guard
	At        time.Time

	SubmitDeadline *time.Time
	Decision       *Decision
	ReportRef      string

	// DocumentFrom/DocumentTo move the request's document in the same unit
	// of work. Leave DocumentTo empty to leave the document alone.
	DocumentFrom DocumentStatus
	DocumentTo   DocumentStatus
}

// Store persists documents and review requests. Every request mutation is a
// compare-and-set; a lost race surfaces as errs.ErrInvalidState and leaves no
// partial write behind.
type Store interface {
	CreateDocument(ctx context.Context, d *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	// TransitionDocument moves the document to `to` if its status is one of
	// from.
	TransitionDocument(ctx context.Context, id string, from []DocumentStatus, to DocumentStatus, at time.Time) (*Document, error)

	// Assign moves the document PENDING_REVIEW -> REVIEWING and inserts req.
	// It fails with errs.ErrConflict when another request is active.
	Assign(ctx context.Context, req *Request) (*Document, error)
	GetRequest(ctx context.Context, id string) (*Request, error)
	ActiveRequest(ctx context.Context, documentID string) (*Request, error)
	ListRequests(ctx context.Context, documentID string) ([]*Request, error)
	ListReviewerRequests(ctx context.Context, reviewerID string, statuses []RequestStatus) ([]*Request, error)
	Transition(ctx context.Context, t Transition) (*Request, *Document, error)
	// ListOverdue returns active requests whose current deadline is at or
	// before now, oldest deadline first.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*Request, error)
	// DeleteDocument marks the document DELETED and expires its active
	// request, if any, in the same unit of work.
	DeleteDocument(ctx context.Context, id string, at time.Time) (*Document, *Request, error)
}

// MemoryStore is an in-process Store used by tests and STORE=memory. A single
// mutex stands in for row locks.
type MemoryStore struct {
	mu        sync.Mutex
	documents map[string]*Document
	requests  map[string]*Request
	byDoc     map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]*Document),
		requests:  make(map[string]*Request),
		byDoc:     make(map[string][]string),
	}
}

func (s *MemoryStore) CreateDocument(_ context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[d.ID]; ok {
		return errs.Conflict("review.CreateDocument", "document %s already exists", d.ID)
	}
	s.documents[d.ID] = d.Clone()
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, errs.NotFound("review.GetDocument", "document %s not found", id)
	}
	return d.Clone(), nil
}

func (s *MemoryStore) TransitionDocument(_ context.Context, id string, from []DocumentStatus, to DocumentStatus, at time.Time) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, errs.NotFound("review.TransitionDocument", "document %s not found", id)
	}
	if !statusIn(d.Status, from) {
		return nil, errs.InvalidState("review.TransitionDocument", "document %s is %s", id, d.Status)
	}
	d.Status = to
	d.UpdatedAt = at
	return d.Clone(), nil
}

func (s *MemoryStore) Assign(_ context.Context, req *Request) (*Document, error) {
	const op = "review.Assign"
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[req.DocumentID]
	if !ok {
		return nil, errs.NotFound(op, "document %s not found", req.DocumentID)
	}
	if s.activeLocked(req.DocumentID) != nil {
		return nil, errs.Conflict(op, "document %s already has an active review request", req.DocumentID)
	}
	if d.Status != DocumentPendingReview {
		if d.Status == DocumentReviewing {
			return nil, errs.Conflict(op, "document %s is already under review", req.DocumentID)
		}
		return nil, errs.InvalidState(op, "document %s is %s", req.DocumentID, d.Status)
	}
	d.Status = DocumentReviewing
	d.UpdatedAt = req.CreatedAt
	s.requests[req.ID] = req.Clone()
	s.byDoc[req.DocumentID] = append(s.byDoc[req.DocumentID], req.ID)
	return d.Clone(), nil
}

func (s *MemoryStore) GetRequest(_ context.Context, id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, errs.NotFound("review.GetRequest", "review request %s not found", id)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) ActiveRequest(_ context.Context, documentID string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.activeLocked(documentID)
	if r == nil {
		return nil, errs.NotFound("review.ActiveRequest", "document %s has no active review request", documentID)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) activeLocked(documentID string) *Request {
	for _, id := range s.byDoc[documentID] {
		if r := s.requests[id]; r.Status.Active() {
			return r
		}
	}
	return nil
}

func (s *MemoryStore) ListRequests(_ context.Context, documentID string) ([]*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Request, 0, len(s.byDoc[documentID]))
	for _, id := range s.byDoc[documentID] {
		out = append(out, s.requests[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) ListReviewerRequests(_ context.Context, reviewerID string, statuses []RequestStatus) ([]*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Request
	for _, r := range s.requests {
		if r.ReviewerID != reviewerID {
			continue
		}
		if len(statuses) > 0 && !requestStatusIn(r.Status, statuses) {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Transition(_ context.Context, t Transition) (*Request, *Document, error) {
	const op = "review.Transition"
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[t.RequestID]
	if !ok {
		return nil, nil, errs.NotFound(op, "review request %s not found", t.RequestID)
	}
	if r.Status != t.From || !guardHolds(r, t.Guard, t.At) {
		return nil, nil, errs.InvalidState(op, "review request %s is no longer %s", t.RequestID, t.From)
	}
	d := s.documents[r.DocumentID]
	if t.DocumentTo != "" && (d == nil || d.Status != t.DocumentFrom) {
		return nil, nil, errs.InvalidState(op, "document %s is no longer %s", r.DocumentID, t.DocumentFrom)
	}

	r.Status = t.To
	r.UpdatedAt = t.At
	if t.SubmitDeadline != nil {
		sd := *t.SubmitDeadline
		r.SubmitDeadline = &sd
	}
	if t.Decision != nil {
		dec := *t.Decision
		r.Decision = &dec
	}
	if t.ReportRef != "" {
		r.ReportRef = t.ReportRef
	}
	if t.DocumentTo != "" {
		d.Status = t.DocumentTo
		d.UpdatedAt = t.At
	}
	var doc *Document
	if d != nil {
		doc = d.Clone()
	}
	return r.Clone(), doc, nil
}

func (s *MemoryStore) ListOverdue(_ context.Context, now time.Time, limit int) ([]*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Request
	for _, r := range s.requests {
		if r.Overdue(now) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di, _ := out[i].Deadline()
		dj, _ := out[j].Deadline()
		return di.Before(dj)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, id string, at time.Time) (*Document, *Request, error) {
	const op = "review.DeleteDocument"
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, nil, errs.NotFound(op, "document %s not found", id)
	}
	if !CanTransition(d.Status, DocumentDeleted) {
		return nil, nil, errs.InvalidState(op, "document %s is %s", id, d.Status)
	}
	var expired *Request
	if r := s.activeLocked(id); r != nil {
		r.Status = RequestExpired
		r.UpdatedAt = at
		expired = r.Clone()
	}
	d.Status = DocumentDeleted
	d.UpdatedAt = at
	return d.Clone(), expired, nil
}

func guardHolds(r *Request, g Guard, at time.Time) bool {
	if g == GuardNone {
		return true
	}
	deadline, ok := r.Deadline()
	if !ok {
		return false
	}
	if g == GuardOpen {
		return at.Before(deadline)
	}
	return !at.Before(deadline)
}

func statusIn(s DocumentStatus, set []DocumentStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func requestStatusIn(s RequestStatus, set []RequestStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
