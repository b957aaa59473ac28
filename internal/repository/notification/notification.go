package notificationrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/internal/repository"
	"github.com/nmxmxh/peerdesk/internal/service/notification"
	errs "github.com/nmxmxh/peerdesk/pkg/errors"
)

const columns = `id, type, recipient_user_id, payload, created_at, read_at`

// NotificationRepository handles operations on the notifications table
type NotificationRepository struct {
	*repository.BaseRepository
}

var _ notification.Repository = (*NotificationRepository)(nil)

// NewNotificationRepository creates a new notification repository instance
func NewNotificationRepository(db *sql.DB, log *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		BaseRepository: repository.NewBaseRepository(db, log.With(zap.String("module", "notification_repository"))),
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*notification.Event, error) {
	e := &notification.Event{}
	var (
		typ     string
		payload []byte
		readAt  sql.NullTime
	)
	if err := row.Scan(&e.ID, &typ, &e.RecipientUserID, &payload, &e.CreatedAt, &readAt); err != nil {
		return nil, err
	}
	e.Type = notification.EventType(typ)
	e.CreatedAt = e.CreatedAt.UTC()
	if readAt.Valid {
		t := readAt.Time.UTC()
		e.ReadAt = &t
	}
	m, err := repository.FromJSONB(payload)
	if err != nil {
		return nil, err
	}
	e.Payload = m
	return e, nil
}

// Create inserts a notification. Inserting an id that already exists is a
// no-op so that retried publishes never duplicate history.
func (r *NotificationRepository) Create(ctx context.Context, e *notification.Event) error {
	payload, err := repository.ToJSONB(e.Payload)
	if err != nil {
		return errs.Validation("notification.Create", "payload: %v", err)
	}
	_, err = r.GetDB().ExecContext(ctx,
		`INSERT INTO notifications (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, string(e.Type), e.RecipientUserID, payload, e.CreatedAt, e.ReadAt)
	return repository.MapError("notification.Create", err)
}

// Get retrieves a notification by ID
func (r *NotificationRepository) Get(ctx context.Context, id string) (*notification.Event, error) {
	e, err := scanEvent(r.GetDB().QueryRowContext(ctx,
		`SELECT `+columns+` FROM notifications WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("notification.Get", "notification %s not found", id)
	}
	return e, repository.MapError("notification.Get", err)
}

// ListByUser retrieves a page of the user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*notification.Event, int, error) {
	const op = "notification.ListByUser"
	var total int
	if err := r.GetDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, repository.MapError(op, err)
	}

	var limitArg interface{}
	if limit > 0 {
		limitArg = limit
	}
	rows, err := r.GetDB().QueryContext(ctx,
		`SELECT `+columns+` FROM notifications
		WHERE recipient_user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		userID, limitArg, offset)
	if err != nil {
		return nil, 0, repository.MapError(op, err)
	}
	defer r.CloseRows(rows)

	items := make([]*notification.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, repository.MapError(op, err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, repository.MapError(op, err)
	}
	return items, total, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.GetDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_user_id = $1 AND read_at IS NULL`, userID,
	).Scan(&n)
	return n, repository.MapError("notification.CountUnread", err)
}

// MarkRead sets read_at once; later calls return the stored row unchanged.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string, readAt time.Time) (*notification.Event, error) {
	e, err := scanEvent(r.GetDB().QueryRowContext(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, $2)
		WHERE id = $1
		RETURNING `+columns, id, readAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("notification.MarkRead", "notification %s not found", id)
	}
	return e, repository.MapError("notification.MarkRead", err)
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, readAt time.Time) (int, error) {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE notifications SET read_at = $2 WHERE recipient_user_id = $1 AND read_at IS NULL`,
		userID, readAt)
	if err != nil {
		return 0, repository.MapError("notification.MarkAllRead", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, repository.MapError("notification.MarkAllRead", err)
	}
	return int(n), nil
}
