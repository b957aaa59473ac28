package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"go.uber.org/zap"

	errs "github.com/nmxmxh/peerdesk/pkg/errors"
	"github.com/nmxmxh/peerdesk/pkg/json"
)

// Postgres error codes the repositories translate.
const (
	pqUniqueViolation = "23505"
	pqForeignKey      = "23503"
)

// BaseRepository provides common database functionality.
type BaseRepository struct {
	db  *sql.DB
	log *zap.Logger
}

// NewBaseRepository creates a new base repository instance.
func NewBaseRepository(db *sql.DB, log *zap.Logger) *BaseRepository {
	return &BaseRepository{
		db:  db,
		log: log,
	}
}

// GetDB returns the underlying database connection.
func (r *BaseRepository) GetDB() *sql.DB {
	return r.db
}

// GetLogger returns the logger instance.
func (r *BaseRepository) GetLogger() *zap.Logger {
	return r.log
}

// InTx runs fn in a transaction on the repository's database.
func (r *BaseRepository) InTx(ctx context.Context, fn TxFn) error {
	return WithTransaction(ctx, r.db, fn)
}

// CloseRows closes rows and logs a failure.
func (r *BaseRepository) CloseRows(rows *sql.Rows) {
	if cerr := rows.Close(); cerr != nil && r.log != nil {
		r.log.Error("error closing rows", zap.Error(cerr))
	}
}

// MapError translates driver errors into classified errors: missing rows
// become NotFound, unique violations Conflict and everything else Internal.
// Already classified errors pass through.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *errs.Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFound(op, "not found")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return errs.Conflict(op, "%s", pqErr.Constraint)
		case pqForeignKey:
			return errs.NotFound(op, "%s", pqErr.Constraint)
		}
	}
	return errs.Internal(op, err)
}

// IsUniqueViolation reports whether err is a Postgres unique violation,
// optionally on the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// ToJSONB marshals a map to JSONB ([]byte) for Postgres.
func ToJSONB(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// FromJSONB unmarshals JSONB ([]byte) from Postgres to a map.
func FromJSONB(b []byte) (map[string]interface{}, error) {
	if len(b) == 0 {
		return map[string]interface{}{}, nil
	}
	var m map[string]interface{}
	err := json.Unmarshal(b, &m)
	return m, err
}
