package reviewrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/internal/repository"
	"github.com/nmxmxh/peerdesk/internal/service/review"
	errs "github.com/nmxmxh/peerdesk/pkg/errors"
)

// Directory is the Postgres review.Directory backed by directory_members.
type Directory struct {
	*repository.BaseRepository
}

var _ review.Directory = (*Directory)(nil)

func NewDirectory(db *sql.DB, log *zap.Logger) *Directory {
	return &Directory{
		BaseRepository: repository.NewBaseRepository(db, log.With(zap.String("module", "directory_repository"))),
	}
}

func (d *Directory) Member(ctx context.Context, userID string) (*review.Member, error) {
	m := &review.Member{}
	err := d.GetDB().QueryRowContext(ctx,
		`SELECT user_id, roles, specializations, updated_at FROM directory_members WHERE user_id = $1`, userID,
	).Scan(&m.UserID, pq.Array(&m.Roles), pq.Array(&m.Specializations), &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("review.Member", "user %s not found in directory", userID)
	}
	if err != nil {
		return nil, repository.MapError("review.Member", err)
	}
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

func (d *Directory) PutMember(ctx context.Context, m *review.Member) error {
	roles := m.Roles
	if roles == nil {
		roles = []string{}
	}
	specs := m.Specializations
	if specs == nil {
		specs = []string{}
	}
	_, err := d.GetDB().ExecContext(ctx,
		`INSERT INTO directory_members (user_id, roles, specializations, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET roles = EXCLUDED.roles, specializations = EXCLUDED.specializations, updated_at = EXCLUDED.updated_at`,
		m.UserID, pq.Array(roles), pq.Array(specs), m.UpdatedAt)
	return repository.MapError("review.PutMember", err)
}

func (d *Directory) Admins(ctx context.Context) ([]string, error) {
	rows, err := d.GetDB().QueryContext(ctx,
		`SELECT user_id FROM directory_members WHERE $1 = ANY(roles) ORDER BY user_id`, review.RoleAdmin)
	if err != nil {
		return nil, repository.MapError("review.Admins", err)
	}
	defer d.CloseRows(rows)

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, repository.MapError("review.Admins", err)
		}
		ids = append(ids, id)
	}
	return ids, repository.MapError("review.Admins", rows.Err())
}
