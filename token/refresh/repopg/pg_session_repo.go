// Package pgsessionrepo implements the refresh session store over PostgreSQL.
// Rotation runs delete-then-insert inside one transaction so that of two
// concurrent rotations off the same token exactly one can commit.
package pgsessionrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/acadnet/acadnet/internal/dbx"
	"github.com/acadnet/acadnet/token/refresh"
)

var _ refresh.Repo = (*PgSessionRepo)(nil)

// PgSessionRepo implements refresh.Repo over a *sql.DB. It needs the full
// handle (not dbx.DBTX) because Rotate opens its own transaction.
type PgSessionRepo struct {
	db *sql.DB
}

// NewPgSessionRepo constructs a repository bound to the given database.
func NewPgSessionRepo(db *sql.DB) *PgSessionRepo {
	return &PgSessionRepo{db: db}
}

func (r *PgSessionRepo) Create(ctx context.Context, session *refresh.Session) error {
	query := `
		INSERT INTO refresh_sessions (token, user_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, session.Token, session.UserID, session.IssuedAt, session.ExpiresAt); err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (r *PgSessionRepo) Get(ctx context.Context, token string) (*refresh.Session, error) {
	query := `
		SELECT token, user_id, issued_at, expires_at
		FROM refresh_sessions
		WHERE token = $1
	`
	session := &refresh.Session{}
	err := r.db.QueryRowContext(ctx, query, token).
		Scan(&session.Token, &session.UserID, &session.IssuedAt, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, refresh.ErrRevoked
		}
		return nil, wrapDBError(err)
	}

	// Lazy expiry: an expired row is removed on lookup and treated as revoked.
	if session.Expired(refresh.NowTimeFunc()) {
		_ = r.Delete(ctx, token)
		return nil, refresh.ErrRevoked
	}
	return session, nil
}

func (r *PgSessionRepo) Rotate(ctx context.Context, oldToken string, next *refresh.Session) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token = $1 AND expires_at > $2`, oldToken, refresh.NowTimeFunc())
		if err != nil {
			return wrapDBError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return wrapDBError(err)
		}
		if affected == 0 {
			// The token was already rotated, logged out, or expired. A
			// concurrent rotation that got here first wins; this one fails.
			return refresh.ErrRevoked
		}

		query := `
			INSERT INTO refresh_sessions (token, user_id, issued_at, expires_at)
			VALUES ($1, $2, $3, $4)
		`
		if _, err := tx.ExecContext(ctx, query, next.Token, next.UserID, next.IssuedAt, next.ExpiresAt); err != nil {
			return wrapDBError(err)
		}
		return nil
	})
	return err
}

func (r *PgSessionRepo) Delete(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token = $1`, token); err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (r *PgSessionRepo) DeleteAllForUser(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE user_id = $1`, userID); err != nil {
		return wrapDBError(err)
	}
	return nil
}

func wrapDBError(err error) error {
	if errors.Is(err, refresh.ErrRevoked) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	return fmt.Errorf("db error: %w", err)
}
