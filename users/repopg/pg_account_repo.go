// Package pgaccountrepo implements the credential store over PostgreSQL.
// Uniqueness of email and username is enforced by the schema and translated
// into the typed duplicate errors the resolver and signup flows rely on.
package pgaccountrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/acadnet/acadnet/internal/dbx"
	"github.com/acadnet/acadnet/users"
)

const pgUniqueViolation = "23505"

var _ users.Repo = (*PgAccountRepo)(nil)

// PgAccountRepo implements users.Repo over dbx.DBTX (satisfied by *sql.DB or
// *sql.Tx).
type PgAccountRepo struct {
	db dbx.DBTX
}

// NewPgAccountRepo constructs a repository bound to the given DBTX.
func NewPgAccountRepo(db dbx.DBTX) *PgAccountRepo {
	return &PgAccountRepo{db: db}
}

const accountColumns = `id, email, username, full_name, password_hash, provider, role, verified, banned, last_otp_at, created_at, updated_at`

func (r *PgAccountRepo) Create(ctx context.Context, account *users.Account) (*users.Account, error) {
	query := `
		INSERT INTO accounts (email, username, full_name, password_hash, provider, role, verified, banned, last_otp_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	lastOTP := account.LastOTPAt
	if lastOTP.IsZero() {
		lastOTP = users.LastOTPEpoch
	}

	err := r.db.QueryRowContext(ctx, query,
		users.NormalizeEmail(account.Email),
		users.NormalizeUsername(account.Username),
		account.FullName,
		account.PasswordHash,
		account.Provider,
		account.Role,
		account.Verified,
		account.Banned,
		lastOTP,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}

	account.Email = users.NormalizeEmail(account.Email)
	account.Username = users.NormalizeUsername(account.Username)
	account.LastOTPAt = lastOTP
	return account, nil
}

func (r *PgAccountRepo) GetByID(ctx context.Context, id int64) (*users.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *PgAccountRepo) GetByEmail(ctx context.Context, email string) (*users.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, users.NormalizeEmail(email)))
}

func (r *PgAccountRepo) GetByUsername(ctx context.Context, username string) (*users.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, users.NormalizeUsername(username)))
}

func (r *PgAccountRepo) UpdatePasswordHash(ctx context.Context, id int64, newHash string) error {
	return r.execOnAccount(ctx, `UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`, id, newHash)
}

func (r *PgAccountRepo) SetVerified(ctx context.Context, id int64, verified bool) error {
	return r.execOnAccount(ctx, `UPDATE accounts SET verified = $2, updated_at = now() WHERE id = $1`, id, verified)
}

func (r *PgAccountRepo) SetRole(ctx context.Context, id int64, role users.RoleType) error {
	return r.execOnAccount(ctx, `UPDATE accounts SET role = $2, updated_at = now() WHERE id = $1`, id, role)
}

func (r *PgAccountRepo) SetBanned(ctx context.Context, id int64, banned bool) error {
	return r.execOnAccount(ctx, `UPDATE accounts SET banned = $2, updated_at = now() WHERE id = $1`, id, banned)
}

// ClaimOTPSlot bumps last_otp_at only when the cooldown has elapsed. The
// conditional UPDATE makes check and bump a single statement, so two
// concurrent claims can never both pass the cooldown check.
func (r *PgAccountRepo) ClaimOTPSlot(ctx context.Context, id int64, now time.Time, cooldown time.Duration) (time.Duration, error) {
	query := `
		UPDATE accounts SET last_otp_at = $2, updated_at = $2
		WHERE id = $1 AND last_otp_at <= $3
	`
	res, err := r.db.ExecContext(ctx, query, id, now, now.Add(-cooldown))
	if err != nil {
		return 0, translateError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, translateError(err)
	}
	if affected > 0 {
		return 0, nil
	}

	var lastOTP time.Time
	err = r.db.QueryRowContext(ctx, `SELECT last_otp_at FROM accounts WHERE id = $1`, id).Scan(&lastOTP)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, users.ErrNotFound
		}
		return 0, translateError(err)
	}

	remaining := cooldown - now.Sub(lastOTP)
	if remaining < 0 {
		// Lost a race against a concurrent claim that just bumped the anchor.
		remaining = cooldown
	}
	return remaining, users.ErrOTPCooldown
}

func (r *PgAccountRepo) Delete(ctx context.Context, id int64) error {
	return r.execOnAccount(ctx, `DELETE FROM accounts WHERE id = $1`, id)
}

func (r *PgAccountRepo) List(ctx context.Context, offset, limit int) ([]*users.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY id OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	accounts := make([]*users.Account, 0)
	for rows.Next() {
		account := &users.Account{}
		if err := rows.Scan(
			&account.ID, &account.Email, &account.Username, &account.FullName,
			&account.PasswordHash, &account.Provider, &account.Role,
			&account.Verified, &account.Banned, &account.LastOTPAt,
			&account.CreatedAt, &account.UpdatedAt,
		); err != nil {
			return nil, translateError(err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return accounts, nil
}

func (r *PgAccountRepo) execOnAccount(ctx context.Context, query string, id int64, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return translateError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return translateError(err)
	}
	if affected == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (r *PgAccountRepo) scanAccount(row *sql.Row) (*users.Account, error) {
	account := &users.Account{}
	err := row.Scan(
		&account.ID, &account.Email, &account.Username, &account.FullName,
		&account.PasswordHash, &account.Provider, &account.Role,
		&account.Verified, &account.Banned, &account.LastOTPAt,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, translateError(err)
	}
	return account, nil
}

// translateError maps driver errors onto the store-level sentinels.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch {
		case strings.Contains(pgErr.ConstraintName, "email"):
			return users.ErrDuplicateEmail
		case strings.Contains(pgErr.ConstraintName, "username"):
			return users.ErrDuplicateUsername
		}
		return users.ErrDuplicateEmail
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", users.ErrUnavailable, err)
	}
	return fmt.Errorf("db error: %w", err)
}
