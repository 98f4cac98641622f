// Package pgotprepo implements the OTP code store over PostgreSQL. The
// unique constraint on user_id is the backstop guaranteeing a single
// unconsumed record per account even when a Replace races a cancellation.
package pgotprepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/acadnet/acadnet/internal/dbx"
	"github.com/acadnet/acadnet/otp"
)

var _ otp.Repo = (*PgOTPRepo)(nil)

// PgOTPRepo implements otp.Repo over a *sql.DB.
type PgOTPRepo struct {
	db *sql.DB
}

func NewPgOTPRepo(db *sql.DB) *PgOTPRepo {
	return &PgOTPRepo{db: db}
}

func (r *PgOTPRepo) Replace(ctx context.Context, record *otp.Record) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM otps WHERE user_id = $1`, record.UserID); err != nil {
			return wrapDBError(err)
		}
		query := `
			INSERT INTO otps (user_id, code, expires_at)
			VALUES ($1, $2, $3)
		`
		if _, err := tx.ExecContext(ctx, query, record.UserID, record.Code, record.ExpiresAt); err != nil {
			return wrapDBError(err)
		}
		return nil
	})
}

func (r *PgOTPRepo) Get(ctx context.Context, userID int64) (*otp.Record, error) {
	query := `
		SELECT user_id, code, expires_at
		FROM otps
		WHERE user_id = $1
	`
	record := &otp.Record{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&record.UserID, &record.Code, &record.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, otp.ErrNoPendingCode
		}
		return nil, wrapDBError(err)
	}
	return record, nil
}

func (r *PgOTPRepo) Delete(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM otps WHERE user_id = $1`, userID); err != nil {
		return wrapDBError(err)
	}
	return nil
}

func wrapDBError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", otp.ErrUnavailable, err)
	}
	return fmt.Errorf("db error: %w", err)
}
