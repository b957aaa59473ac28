package reviewrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/internal/repository"
	"github.com/nmxmxh/peerdesk/internal/service/review"
	errs "github.com/nmxmxh/peerdesk/pkg/errors"
)

const (
	documentColumns = `id, owner_id, specialization_id, title, status, created_at, updated_at`
	requestColumns  = `id, document_id, reviewer_id, status, note, respond_deadline,
		submit_deadline, decision, report_ref, created_at, updated_at`

	// deadlineExpr is the deadline that applies to a request in its current
	// status.
	deadlineExpr = `CASE status WHEN 'PENDING' THEN respond_deadline WHEN 'ACCEPTED' THEN submit_deadline END`

	activeIndex = "uq_review_requests_active_document"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// Repository is the Postgres review.Store. Paired request/document changes
// run in one transaction and every request update is conditional on the
// status it was read in.
type Repository struct {
	*repository.BaseRepository
}

var _ review.Store = (*Repository)(nil)

func New(db *sql.DB, log *zap.Logger) *Repository {
	return &Repository{
		BaseRepository: repository.NewBaseRepository(db, log.With(zap.String("module", "review_repository"))),
	}
}

func scanDocument(row scanner) (*review.Document, error) {
	d := &review.Document{}
	var status string
	if err := row.Scan(&d.ID, &d.OwnerID, &d.SpecializationID, &d.Title, &status, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Status = review.DocumentStatus(status)
	if !d.Status.Valid() {
		return nil, errs.Internal("review.scanDocument", fmt.Errorf("document %s has unknown status %q", d.ID, status))
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

func scanRequest(row scanner) (*review.Request, error) {
	r := &review.Request{}
	var (
		status   string
		submit   sql.NullTime
		decision sql.NullString
	)
	if err := row.Scan(&r.ID, &r.DocumentID, &r.ReviewerID, &status, &r.Note, &r.RespondDeadline,
		&submit, &decision, &r.ReportRef, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = review.RequestStatus(status)
	if !r.Status.Valid() {
		return nil, errs.Internal("review.scanRequest", fmt.Errorf("review request %s has unknown status %q", r.ID, status))
	}
	r.RespondDeadline = r.RespondDeadline.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if submit.Valid {
		t := submit.Time.UTC()
		r.SubmitDeadline = &t
	}
	if decision.Valid {
		d := review.Decision(decision.String)
		r.Decision = &d
	}
	return r, nil
}

func (r *Repository) CreateDocument(ctx context.Context, d *review.Document) error {
	_, err := r.GetDB().ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.OwnerID, d.SpecializationID, d.Title, string(d.Status), d.CreatedAt, d.UpdatedAt)
	return repository.MapError("review.CreateDocument", err)
}

func (r *Repository) GetDocument(ctx context.Context, id string) (*review.Document, error) {
	return getDocument(ctx, r.GetDB(), id)
}

func getDocument(ctx context.Context, q repository.DBTX, id string) (*review.Document, error) {
	d, err := scanDocument(q.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("review.GetDocument", "document %s not found", id)
	}
	return d, repository.MapError("review.GetDocument", err)
}

func (r *Repository) TransitionDocument(ctx context.Context, id string, from []review.DocumentStatus, to review.DocumentStatus, at time.Time) (*review.Document, error) {
	const op = "review.TransitionDocument"
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}
	d, err := scanDocument(r.GetDB().QueryRowContext(ctx,
		`UPDATE documents SET status = $1, updated_at = $2
		WHERE id = $3 AND status = ANY($4)
		RETURNING `+documentColumns,
		string(to), at, id, pq.Array(fromStrs)))
	if errors.Is(err, sql.ErrNoRows) {
		current, gErr := r.GetDocument(ctx, id)
		if gErr != nil {
			return nil, gErr
		}
		return nil, errs.InvalidState(op, "document %s is %s", id, current.Status)
	}
	if err != nil {
		return nil, repository.MapError(op, err)
	}
	return d, nil
}

func (r *Repository) Assign(ctx context.Context, req *review.Request) (*review.Document, error) {
	const op = "review.Assign"
	var doc *review.Document
	err := r.InTx(ctx, func(tx *sql.Tx) error {
		var err error
		doc, err = scanDocument(tx.QueryRowContext(ctx,
			`UPDATE documents SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4
			RETURNING `+documentColumns,
			string(review.DocumentReviewing), req.CreatedAt, req.DocumentID, string(review.DocumentPendingReview)))
		if errors.Is(err, sql.ErrNoRows) {
			current, gErr := getDocument(ctx, tx, req.DocumentID)
			if gErr != nil {
				return gErr
			}
			if current.Status == review.DocumentReviewing {
				return errs.Conflict(op, "document %s is already under review", req.DocumentID)
			}
			return errs.InvalidState(op, "document %s is %s", req.DocumentID, current.Status)
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO review_requests (`+requestColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			req.ID, req.DocumentID, req.ReviewerID, string(req.Status), req.Note, req.RespondDeadline,
			req.SubmitDeadline, nullDecision(req.Decision), req.ReportRef, req.CreatedAt, req.UpdatedAt)
		if repository.IsUniqueViolation(err, activeIndex) {
			return errs.Conflict(op, "document %s already has an active review request", req.DocumentID)
		}
		return err
	})
	if err != nil {
		return nil, repository.MapError(op, err)
	}
	return doc, nil
}

func (r *Repository) GetRequest(ctx context.Context, id string) (*review.Request, error) {
	req, err := scanRequest(r.GetDB().QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM review_requests WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("review.GetRequest", "review request %s not found", id)
	}
	return req, repository.MapError("review.GetRequest", err)
}

func (r *Repository) ActiveRequest(ctx context.Context, documentID string) (*review.Request, error) {
	req, err := scanRequest(r.GetDB().QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM review_requests
		WHERE document_id = $1 AND status = ANY($2)`, documentID, activeStatuses()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("review.ActiveRequest", "document %s has no active review request", documentID)
	}
	return req, repository.MapError("review.ActiveRequest", err)
}

func (r *Repository) ListRequests(ctx context.Context, documentID string) ([]*review.Request, error) {
	return r.queryRequests(ctx, "review.ListRequests",
		`SELECT `+requestColumns+` FROM review_requests
		WHERE document_id = $1 ORDER BY created_at ASC, id ASC`, documentID)
}

func (r *Repository) ListReviewerRequests(ctx context.Context, reviewerID string, statuses []review.RequestStatus) ([]*review.Request, error) {
	const op = "review.ListReviewerRequests"
	if len(statuses) == 0 {
		return r.queryRequests(ctx, op,
			`SELECT `+requestColumns+` FROM review_requests
			WHERE reviewer_id = $1 ORDER BY created_at DESC`, reviewerID)
	}
	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}
	return r.queryRequests(ctx, op,
		`SELECT `+requestColumns+` FROM review_requests
		WHERE reviewer_id = $1 AND status = ANY($2) ORDER BY created_at DESC`, reviewerID, pq.Array(strs))
}

func (r *Repository) queryRequests(ctx context.Context, op, query string, args ...interface{}) ([]*review.Request, error) {
	rows, err := r.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, repository.MapError(op, err)
	}
	defer r.CloseRows(rows)

	var out []*review.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, repository.MapError(op, err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.MapError(op, err)
	}
	return out, nil
}

func (r *Repository) Transition(ctx context.Context, t review.Transition) (*review.Request, *review.Document, error) {
	const op = "review.Transition"
	guard := ""
	switch t.Guard {
	case review.GuardOpen:
		guard = ` AND ` + deadlineExpr + ` > $8`
	case review.GuardLapsed:
		guard = ` AND ` + deadlineExpr + ` <= $8`
	}
	query := fmt.Sprintf(`UPDATE review_requests SET
			status = $2,
			updated_at = $3,
			submit_deadline = COALESCE($4, submit_deadline),
			decision = COALESCE($5, decision),
			report_ref = CASE WHEN $6::text = '' THEN report_ref ELSE $6::text END
		WHERE id = $1 AND status = $7%s
		RETURNING %s`, guard, requestColumns)
	args := []interface{}{
		t.RequestID, string(t.To), t.At, t.SubmitDeadline, nullDecision(t.Decision), t.ReportRef, string(t.From),
	}
	if t.Guard != review.GuardNone {
		args = append(args, t.At)
	}

	var (
		req *review.Request
		doc *review.Document
	)
	err := r.InTx(ctx, func(tx *sql.Tx) error {
		// Documents are locked before their requests on every write path.
		var documentID string
		err := tx.QueryRowContext(ctx,
			`SELECT d.id FROM documents d
			JOIN review_requests rr ON rr.document_id = d.id
			WHERE rr.id = $1
			FOR UPDATE OF d`, t.RequestID).Scan(&documentID)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NotFound(op, "review request %s not found", t.RequestID)
		}
		if err != nil {
			return err
		}

		req, err = scanRequest(tx.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return errs.InvalidState(op, "review request %s is no longer %s", t.RequestID, t.From)
		}
		if err != nil {
			return err
		}

		if t.DocumentTo == "" {
			doc, err = getDocument(ctx, tx, req.DocumentID)
			return err
		}
		doc, err = scanDocument(tx.QueryRowContext(ctx,
			`UPDATE documents SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4
			RETURNING `+documentColumns,
			string(t.DocumentTo), t.At, req.DocumentID, string(t.DocumentFrom)))
		if errors.Is(err, sql.ErrNoRows) {
			return errs.InvalidState(op, "document %s is no longer %s", req.DocumentID, t.DocumentFrom)
		}
		return err
	})
	if err != nil {
		return nil, nil, repository.MapError(op, err)
	}
	return req, doc, nil
}

func (r *Repository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*review.Request, error) {
	return r.queryRequests(ctx, "review.ListOverdue",
		`SELECT `+requestColumns+` FROM review_requests
		WHERE (status = 'PENDING' AND respond_deadline <= $1)
		   OR (status = 'ACCEPTED' AND submit_deadline <= $1)
		ORDER BY `+deadlineExpr+` ASC
		LIMIT $2`, now, limit)
}

func (r *Repository) DeleteDocument(ctx context.Context, id string, at time.Time) (*review.Document, *review.Request, error) {
	const op = "review.DeleteDocument"
	var (
		doc     *review.Document
		expired *review.Request
	)
	err := r.InTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NotFound(op, "document %s not found", id)
		}
		if err != nil {
			return err
		}
		if !review.CanTransition(review.DocumentStatus(status), review.DocumentDeleted) {
			return errs.InvalidState(op, "document %s is %s", id, status)
		}

		expired, err = scanRequest(tx.QueryRowContext(ctx,
			`UPDATE review_requests SET status = 'EXPIRED', updated_at = $2
			WHERE document_id = $1 AND status = ANY($3)
			RETURNING `+requestColumns, id, at, activeStatuses()))
		if errors.Is(err, sql.ErrNoRows) {
			expired = nil
		} else if err != nil {
			return err
		}

		doc, err = scanDocument(tx.QueryRowContext(ctx,
			`UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3 RETURNING `+documentColumns,
			string(review.DocumentDeleted), at, id))
		return err
	})
	if err != nil {
		return nil, nil, repository.MapError(op, err)
	}
	return doc, expired, nil
}

func activeStatuses() interface{} {
	strs := make([]string, len(review.ActiveStatuses))
	for i, st := range review.ActiveStatuses {
		strs[i] = string(st)
	}
	return pq.Array(strs)
}

func nullDecision(d *review.Decision) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*d), Valid: true}
}
