package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nmxmxh/peerdesk/internal/service/notification"
	errs "github.com/nmxmxh/peerdesk/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	admin    = Actor{UserID: "admin-1", Roles: []string{RoleAdmin}}
	org      = Actor{UserID: "org-1", Roles: []string{RoleOrganization}}
	owner    = Actor{UserID: "owner-1", Roles: []string{RoleReader}}
	r1       = Actor{UserID: "rev-1", Roles: []string{RoleReviewer}}
	r2       = Actor{UserID: "rev-2", Roles: []string{RoleReviewer}}
	verifier = Actor{UserID: "verifier", Roles: []string{RoleSystem}}
)

type fixture struct {
	svc      *Service
	store    *MemoryStore
	dir      *MemoryDirectory
	events   *notification.MemoryRepository
	dispatch *notification.Dispatcher
	clock    *fakeClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	f := &fixture{
		store:  NewMemoryStore(),
		events: notification.NewMemoryRepository(),
		clock:  &fakeClock{now: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)},
		dir: NewMemoryDirectory(
			&Member{UserID: "admin-1", Roles: []string{RoleAdmin}},
			&Member{UserID: "admin-2", Roles: []string{RoleAdmin, RoleReviewer}},
			&Member{UserID: "rev-1", Roles: []string{RoleReviewer}, Specializations: []string{"math"}},
			&Member{UserID: "rev-2", Roles: []string{RoleReviewer}, Specializations: []string{"math", "bio"}},
			&Member{UserID: "rev-bio", Roles: []string{RoleReviewer}, Specializations: []string{"bio"}},
			&Member{UserID: "owner-1", Roles: []string{RoleReader, RoleReviewer}, Specializations: []string{"math"}},
			&Member{UserID: "reader-9", Roles: []string{RoleReader}},
		),
	}
	f.dispatch = notification.NewDispatcher(log, f.events, notification.NewHub(log, 16),
		notification.WithClock(f.clock.Now))
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.svc = NewService(log, f.store, f.dir, f.dispatch, Config{
		RespondWindow:  72 * time.Hour,
		SubmitWindow:   14 * 24 * time.Hour,
		SweepBatchSize: 2,
	}, opts...)
	return f
}

// reviewable returns a verified document waiting for a reviewer.
func (f *fixture) reviewable(t *testing.T) *Document {
	t.Helper()
	ctx := context.Background()
	doc, err := f.svc.CreateDocument(ctx, owner, "Linear maps", "math")
	require.NoError(t, err)
	doc, err = f.svc.CompleteVerification(ctx, verifier, doc.ID, true)
	require.NoError(t, err)
	require.Equal(t, DocumentPendingReview, doc.Status)
	return doc
}

func (f *fixture) assigned(t *testing.T) (*Document, *Request) {
	t.Helper()
	doc := f.reviewable(t)
	req, err := f.svc.CreateReviewRequest(context.Background(), admin, doc.ID, r1.UserID, "please")
	require.NoError(t, err)
	return doc, req
}

func (f *fixture) accepted(t *testing.T) (*Document, *Request) {
	t.Helper()
	doc, req := f.assigned(t)
	req, err := f.svc.Respond(context.Background(), r1, req.ID, ActionAccept)
	require.NoError(t, err)
	return doc, req
}

func (f *fixture) doc(t *testing.T, id string) *Document {
	t.Helper()
	d, err := f.store.GetDocument(context.Background(), id)
	require.NoError(t, err)
	return d
}

// typesFor returns the event types in userID's history, oldest first.
func (f *fixture) typesFor(t *testing.T, userID string) []notification.EventType {
	t.Helper()
	items, _, err := f.events.ListByUser(context.Background(), userID, 0, 0)
	require.NoError(t, err)
	out := make([]notification.EventType, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i].Type)
	}
	return out
}

func countType(types []notification.EventType, want notification.EventType) int {
	n := 0
	for _, typ := range types {
		if typ == want {
			n++
		}
	}
	return n
}

func TestCreateReviewRequestSecondAssignmentConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.reviewable(t)

	req, err := f.svc.CreateReviewRequest(ctx, admin, doc.ID, r1.UserID, "")
	require.NoError(t, err)
	assert.Equal(t, RequestPending, req.Status)
	assert.Equal(t, f.clock.Now().Add(72*time.Hour), req.RespondDeadline)
	assert.Equal(t, DocumentReviewing, f.doc(t, doc.ID).Status)

	_, err = f.svc.CreateReviewRequest(ctx, admin, doc.ID, r2.UserID, "")
	assert.ErrorIs(t, err, errs.ErrConflict)

	assert.Equal(t, []notification.EventType{notification.TypeReviewRequest}, f.typesFor(t, r1.UserID))
	assert.Contains(t, f.typesFor(t, owner.UserID), notification.TypeReviewAssigned)
	assert.Empty(t, f.typesFor(t, r2.UserID))
}

func TestCreateReviewRequestErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.reviewable(t)

	unverified, err := f.svc.CreateDocument(ctx, owner, "Draft", "math")
	require.NoError(t, err)

	tests := []struct {
		name       string
		actor      Actor
		documentID string
		reviewerID string
		want       error
	}{
		{"reader cannot assign", owner, doc.ID, r1.UserID, errs.ErrForbidden},
		{"reviewer cannot assign", r1, doc.ID, r2.UserID, errs.ErrForbidden},
		{"missing document", admin, "nope", r1.UserID, errs.ErrNotFound},
		{"missing reviewer", admin, doc.ID, "ghost", errs.ErrNotFound},
		{"empty reviewer", admin, doc.ID, " ", errs.ErrValidation},
		{"uploader reviewing own document", admin, doc.ID, owner.UserID, errs.ErrValidation},
		{"not a reviewer", admin, doc.ID, "reader-9", errs.ErrValidation},
		{"wrong specialization", admin, doc.ID, "rev-bio", errs.ErrValidation},
		{"document still verifying", org, unverified.ID, r1.UserID, errs.ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateReviewRequest(ctx, tt.actor, tt.documentID, tt.reviewerID, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, DocumentPendingReview, f.doc(t, doc.ID).Status)
}

func TestConcurrentAssignmentLeavesOneActiveRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.reviewable(t)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		reviewer := r1.UserID
		if i%2 == 1 {
			reviewer = r2.UserID
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateReviewRequest(ctx, admin, doc.ID, reviewer, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, errs.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)

	reqs, err := f.store.ListRequests(ctx, doc.ID)
	require.NoError(t, err)
	active := 0
	for _, r := range reqs {
		if r.Status.Active() {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestRespondAccept(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, req := f.assigned(t)
	f.clock.Advance(time.Hour)

	_, err := f.svc.Respond(ctx, r2, req.ID, ActionAccept)
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.svc.Respond(ctx, r1, req.ID, "MAYBE")
	assert.ErrorIs(t, err, errs.ErrValidation)

	got, err := f.svc.Respond(ctx, r1, req.ID, ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, RequestAccepted, got.Status)
	require.NotNil(t, got.SubmitDeadline)
	assert.Equal(t, f.clock.Now().Add(14*24*time.Hour), *got.SubmitDeadline)
	assert.Equal(t, DocumentReviewing, f.doc(t, doc.ID).Status)
	assert.Contains(t, f.typesFor(t, owner.UserID), notification.TypeReviewAccepted)

	_, err = f.svc.Respond(ctx, r1, req.ID, ActionAccept)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestRespondDeclineReturnsDocumentToQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, req := f.assigned(t)

	got, err := f.svc.Respond(ctx, r1, req.ID, ActionDecline)
	require.NoError(t, err)
	assert.Equal(t, RequestRejectedByReviewer, got.Status)
	assert.Equal(t, DocumentPendingReview, f.doc(t, doc.ID).Status)

	assert.Contains(t, f.typesFor(t, owner.UserID), notification.TypeReviewDeclined)
	assert.Equal(t, []notification.EventType{notification.TypeReviewDeclined}, f.typesFor(t, "admin-1"))
	assert.Equal(t, []notification.EventType{notification.TypeReviewDeclined}, f.typesFor(t, "admin-2"))

	// The slot is free again.
	_, err = f.svc.CreateReviewRequest(ctx, admin, doc.ID, r2.UserID, "")
	require.NoError(t, err)
}

func TestRespondAfterDeadlineIsExpired(t *testing.T) {
	f := newFixture(t)
	_, req := f.assigned(t)
	f.clock.Advance(72 * time.Hour)

	_, err := f.svc.Respond(context.Background(), r1, req.ID, ActionAccept)
	assert.ErrorIs(t, err, errs.ErrExpired)
}

func TestSubmitApprovedNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, req := f.accepted(t)
	f.clock.Advance(24 * time.Hour)

	got, err := f.svc.Submit(ctx, r1, req.ID, DecisionApproved, "reports/r1.pdf")
	require.NoError(t, err)
	assert.Equal(t, RequestCompleted, got.Status)
	require.NotNil(t, got.Decision)
	assert.Equal(t, DecisionApproved, *got.Decision)
	assert.Equal(t, "reports/r1.pdf", got.ReportRef)
	assert.Equal(t, DocumentPendingApprove, f.doc(t, doc.ID).Status)

	assert.Equal(t, 1, countType(f.typesFor(t, owner.UserID), notification.TypeReviewCompleted))
	assert.Equal(t, 1, countType(f.typesFor(t, "admin-1"), notification.TypeDocumentApproval))
	assert.Equal(t, 1, countType(f.typesFor(t, "admin-2"), notification.TypeDocumentApproval))

	_, err = f.svc.Submit(ctx, r1, req.ID, DecisionApproved, "reports/r1.pdf")
	assert.ErrorIs(t, err, errs.ErrInvalidState)
	assert.Equal(t, 1, countType(f.typesFor(t, "admin-1"), notification.TypeDocumentApproval))

	approved, err := f.svc.DecideApproval(ctx, admin, doc.ID, true)
	require.NoError(t, err)
	assert.Equal(t, DocumentActive, approved.Status)
	assert.Contains(t, f.typesFor(t, owner.UserID), notification.TypeDocumentApproved)
}

func TestSubmitRejectedReturnsDocumentToQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, req := f.accepted(t)

	_, err := f.svc.Submit(ctx, r1, req.ID, DecisionRejected, "reports/r1.pdf")
	require.NoError(t, err)
	assert.Equal(t, DocumentPendingReview, f.doc(t, doc.ID).Status)
	assert.Zero(t, countType(f.typesFor(t, "admin-1"), notification.TypeDocumentApproval))
}

func TestSubmitErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, pending := f.assigned(t)

	_, err := f.svc.Submit(ctx, r1, pending.ID, DecisionApproved, "r.pdf")
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	_, req := f.accepted(t)
	_, err = f.svc.Submit(ctx, r1, req.ID, "MAYBE", "r.pdf")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.svc.Submit(ctx, r1, req.ID, DecisionApproved, "")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.svc.Submit(ctx, r2, req.ID, DecisionApproved, "r.pdf")
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.svc.Submit(ctx, r1, "missing", DecisionApproved, "r.pdf")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	f.clock.Advance(14 * 24 * time.Hour)
	_, err = f.svc.Submit(ctx, r1, req.ID, DecisionApproved, "r.pdf")
	assert.ErrorIs(t, err, errs.ErrExpired)
}

type stubVerifier map[string]bool

func (v stubVerifier) Exists(_ context.Context, ref string) (bool, error) {
	return v[ref], nil
}

func TestSubmitRequiresUploadedArtifact(t *testing.T) {
	ctx := context.Background()
	uploaded := stubVerifier{}
	f := newFixture(t, WithArtifactVerifier(uploaded))
	_, req := f.accepted(t)
	own := ReportPrefix(req.ID) + "ok.pdf"
	uploaded[own] = true

	_, err := f.svc.Submit(ctx, r1, req.ID, DecisionApproved, ReportPrefix(req.ID)+"missing.pdf")
	assert.ErrorIs(t, err, errs.ErrValidation)

	got, err := f.svc.Submit(ctx, r1, req.ID, DecisionApproved, own)
	require.NoError(t, err)
	assert.Equal(t, own, got.ReportRef)
}

func TestSubmitRejectsArtifactOfAnotherRequest(t *testing.T) {
	ctx := context.Background()
	uploaded := stubVerifier{}
	f := newFixture(t, WithArtifactVerifier(uploaded))
	_, req := f.accepted(t)
	foreign := ReportPrefix("other-request") + "ok.pdf"
	sibling := "reports/" + req.ID + "x/ok.pdf"
	uploaded[foreign] = true
	uploaded[sibling] = true
	uploaded["reports/ok.pdf"] = true

	_, err := f.svc.Submit(ctx, r1, req.ID, DecisionApproved, foreign)
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.svc.Submit(ctx, r1, req.ID, DecisionApproved, "reports/ok.pdf")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.svc.Submit(ctx, r1, req.ID, DecisionApproved, sibling)
	assert.ErrorIs(t, err, errs.ErrValidation)

	got, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestAccepted, got.Status)
}

type cancelAfterCommit struct {
	*MemoryStore
	cancel context.CancelFunc
}

func (s *cancelAfterCommit) Transition(ctx context.Context, t Transition) (*Request, *Document, error) {
	req, doc, err := s.MemoryStore.Transition(ctx, t)
	if s.cancel != nil {
		s.cancel()
	}
	return req, doc, err
}

type ctxNotifier struct {
	mu   sync.Mutex
	errs []error
}

func (n *ctxNotifier) Publish(ctx context.Context, _ *notification.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, ctx.Err())
	return nil
}

type ctxDirectory struct {
	*MemoryDirectory
	errs []error
}

func (d *ctxDirectory) Admins(ctx context.Context) ([]string, error) {
	d.errs = append(d.errs, ctx.Err())
	return d.MemoryDirectory.Admins(ctx)
}

func TestEventsOutliveCancelledCaller(t *testing.T) {
	ctx := context.Background()
	store := &cancelAfterCommit{MemoryStore: NewMemoryStore()}
	dir := &ctxDirectory{MemoryDirectory: NewMemoryDirectory(
		&Member{UserID: "admin-1", Roles: []string{RoleAdmin}},
		&Member{UserID: "rev-1", Roles: []string{RoleReviewer}, Specializations: []string{"math"}},
	)}
	notifier := &ctxNotifier{}
	svc := NewService(zaptest.NewLogger(t), store, dir, notifier, Config{
		RespondWindow: time.Hour,
		SubmitWindow:  time.Hour,
	})

	doc, err := svc.CreateDocument(ctx, owner, "Rings", "math")
	require.NoError(t, err)
	_, err = svc.CompleteVerification(ctx, verifier, doc.ID, true)
	require.NoError(t, err)
	req, err := svc.CreateReviewRequest(ctx, admin, doc.ID, r1.UserID, "")
	require.NoError(t, err)
	_, err = svc.Respond(ctx, r1, req.ID, ActionAccept)
	require.NoError(t, err)

	before := len(notifier.errs)
	dir.errs = nil
	opCtx, cancel := context.WithCancel(ctx)
	store.cancel = cancel
	_, err = svc.Submit(opCtx, r1, req.ID, DecisionApproved, "r.pdf")
	require.NoError(t, err)
	require.Error(t, opCtx.Err())

	published := notifier.errs[before:]
	assert.Len(t, published, 2, "owner and admin-1")
	for _, err := range published {
		assert.NoError(t, err)
	}
	require.NotEmpty(t, dir.errs)
	for _, err := range dir.errs {
		assert.NoError(t, err)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateDocument(ctx, owner, "  ", "")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.svc.CreateDocument(ctx, Actor{}, "Title", "")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	doc, err := f.svc.CreateDocument(ctx, owner, "Title", "")
	require.NoError(t, err)
	assert.Equal(t, DocumentAIVerifying, doc.Status)

	_, err = f.svc.CompleteVerification(ctx, owner, doc.ID, true)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	rejected, err := f.svc.CreateDocument(ctx, owner, "Spam", "")
	require.NoError(t, err)
	rejected, err = f.svc.CompleteVerification(ctx, verifier, rejected.ID, false)
	require.NoError(t, err)
	assert.Equal(t, DocumentAIRejected, rejected.Status)
	_, err = f.svc.CompleteVerification(ctx, verifier, rejected.ID, true)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
	assert.Contains(t, f.typesFor(t, owner.UserID), notification.TypeDocumentRejected)

	_, err = f.svc.CompleteVerification(ctx, verifier, doc.ID, true)
	require.NoError(t, err)
	_, err = f.svc.DecideApproval(ctx, admin, doc.ID, true)
	assert.ErrorIs(t, err, errs.ErrInvalidState, "cannot skip review")

	got, err := f.svc.GetDocument(ctx, r1, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, DocumentPendingReview, got.Status)
}

func TestAdminHold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, req := f.accepted(t)
	_, err := f.svc.Submit(ctx, r1, req.ID, DecisionApproved, "r.pdf")
	require.NoError(t, err)
	_, err = f.svc.DecideApproval(ctx, org, doc.ID, true)
	require.NoError(t, err)

	_, err = f.svc.Deactivate(ctx, org, doc.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.svc.DeleteDocument(ctx, owner, doc.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	held, err := f.svc.Deactivate(ctx, admin, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, DocumentInactive, held.Status)

	active, err := f.svc.Reactivate(ctx, admin, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, DocumentActive, active.Status)
}

func TestDeleteReviewingDocumentExpiresRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, req := f.assigned(t)

	_, err := f.svc.DeleteDocument(ctx, r1, doc.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	deleted, err := f.svc.DeleteDocument(ctx, owner, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, DocumentDeleted, deleted.Status)

	got, err := f.svc.GetRequest(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestExpired, got.Status)
	assert.Contains(t, f.typesFor(t, r1.UserID), notification.TypeReviewExpired)

	_, err = f.svc.Respond(ctx, r1, req.ID, ActionAccept)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestRequestVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, req := f.assigned(t)

	for _, a := range []Actor{r1, owner, admin, org} {
		_, err := f.svc.GetRequest(ctx, a, req.ID)
		assert.NoError(t, err, a.UserID)
	}
	_, err := f.svc.GetRequest(ctx, r2, req.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.svc.ListRequests(ctx, r2, doc.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)
	history, err := f.svc.ListRequests(ctx, owner, doc.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	mine, err := f.svc.ListReviewerRequests(ctx, r1, []RequestStatus{RequestPending})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, req.ID, mine[0].ID)

	mine, err = f.svc.ListReviewerRequests(ctx, r1, []RequestStatus{RequestCompleted})
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = f.svc.ListReviewerRequests(ctx, r1, []RequestStatus{"LOST"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestPutMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.svc.PutMember(ctx, org, &Member{UserID: "rev-9", Roles: []string{RoleReviewer}})
	assert.ErrorIs(t, err, errs.ErrForbidden)

	require.NoError(t, f.svc.PutMember(ctx, admin, &Member{UserID: "rev-9", Roles: []string{RoleReviewer}, Specializations: []string{"math"}}))
	doc := f.reviewable(t)
	_, err = f.svc.CreateReviewRequest(ctx, admin, doc.ID, "rev-9", "")
	assert.NoError(t, err)
}

func TestAuthorizeReportUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, pending := f.assigned(t)

	_, err := f.svc.AuthorizeReportUpload(ctx, r1, pending.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	_, err = f.svc.Respond(ctx, r1, pending.ID, ActionAccept)
	require.NoError(t, err)
	_, err = f.svc.AuthorizeReportUpload(ctx, r2, pending.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	req, err := f.svc.AuthorizeReportUpload(ctx, r1, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestAccepted, req.Status)

	f.clock.Advance(15 * 24 * time.Hour)
	_, err = f.svc.AuthorizeReportUpload(ctx, r1, pending.ID)
	assert.ErrorIs(t, err, errs.ErrExpired)
}
