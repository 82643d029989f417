package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-otp-auth/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// AccountRepo stores accounts in the accounts table. Each transition is a
// single conditional statement; when it touches no row the current row is
// read back only to name the reason.
type AccountRepo struct {
	db DBTX
}

func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

const selectAccount = `SELECT account_id, email, password_hash, verified,
       code_hash, issued_at, expires_at, attempts_remaining,
       created_at, updated_at, verified_at
  FROM accounts
 WHERE email = $1`

func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var (
		a          domain.Account
		codeHash   sql.NullString
		issuedAt   sql.NullTime
		expiresAt  sql.NullTime
		attempts   sql.NullInt32
		verifiedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, selectAccount, email).Scan(
		&a.AccountID, &a.Email, &a.PasswordHash, &a.Verified,
		&codeHash, &issuedAt, &expiresAt, &attempts,
		&a.CreatedAt, &a.UpdatedAt, &verifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", email, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	if codeHash.Valid {
		a.Challenge = &domain.Challenge{
			CodeHash:          codeHash.String,
			IssuedAt:          issuedAt.Time,
			ExpiresAt:         expiresAt.Time,
			AttemptsRemaining: int(attempts.Int32),
		}
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		a.VerifiedAt = &t
	}
	return &a, nil
}

func (r *AccountRepo) InsertPending(ctx context.Context, a *domain.Account) error {
	const q = `INSERT INTO accounts (account_id, email, password_hash, verified,
       code_hash, issued_at, expires_at, attempts_remaining, created_at, updated_at, purge_at)
VALUES ($1, $2, $3, FALSE, $4, $5, $6, $7, $8, $9, $10)`

	var ch domain.Challenge
	if a.Challenge != nil {
		ch = *a.Challenge
	}
	var purgeAt time.Time
	if a.PurgeAt > 0 {
		purgeAt = time.Unix(a.PurgeAt, 0).UTC()
	}
	_, err := r.db.ExecContext(ctx, q,
		a.AccountID, a.Email, a.PasswordHash,
		nullString(ch.CodeHash), nullTime(ch.IssuedAt), nullTime(ch.ExpiresAt), ch.AttemptsRemaining,
		a.CreatedAt, a.UpdatedAt, nullTime(purgeAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert account %s: %w", a.Email, domain.ErrDuplicateAccount)
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepo) ReplaceChallenge(ctx context.Context, email string, ch domain.Challenge, purgeAt int64) error {
	const q = `UPDATE accounts
   SET code_hash = $2, issued_at = $3, expires_at = $4, attempts_remaining = $5, updated_at = $3,
       purge_at = COALESCE($6, purge_at)
 WHERE email = $1 AND verified = FALSE`

	var purge time.Time
	if purgeAt > 0 {
		purge = time.Unix(purgeAt, 0).UTC()
	}
	res, err := r.db.ExecContext(ctx, q, email, ch.CodeHash, ch.IssuedAt, ch.ExpiresAt, ch.AttemptsRemaining, nullTime(purge))
	if err != nil {
		return fmt.Errorf("replace challenge: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 1 {
		return err
	}
	cur, err := r.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if cur.Verified {
		return fmt.Errorf("replace challenge %s: %w", email, domain.ErrAlreadyVerified)
	}
	return fmt.Errorf("replace challenge %s: %w", email, domain.ErrNotFound)
}

func (r *AccountRepo) ConsumeAttempt(ctx context.Context, email, codeHash string) (int, error) {
	const q = `UPDATE accounts
   SET attempts_remaining = attempts_remaining - 1, updated_at = $3
 WHERE email = $1 AND verified = FALSE AND code_hash = $2 AND attempts_remaining > 0
RETURNING attempts_remaining`

	var remaining int
	err := r.db.QueryRowContext(ctx, q, email, codeHash, time.Now().UTC()).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, r.rejected(ctx, "consume attempt", email, codeHash, time.Time{})
	}
	if err != nil {
		return 0, fmt.Errorf("consume attempt: %w", err)
	}
	return remaining, nil
}

func (r *AccountRepo) Activate(ctx context.Context, email, codeHash string, at time.Time) error {
	const q = `UPDATE accounts
   SET verified = TRUE, verified_at = $3, updated_at = $3,
       code_hash = NULL, issued_at = NULL, expires_at = NULL, attempts_remaining = NULL,
       purge_at = NULL
 WHERE email = $1 AND verified = FALSE AND code_hash = $2
   AND expires_at >= $3 AND attempts_remaining > 0`

	at = at.UTC()
	res, err := r.db.ExecContext(ctx, q, email, codeHash, at)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 1 {
		return err
	}
	return r.rejected(ctx, "activate", email, codeHash, at)
}

func (r *AccountRepo) rejected(ctx context.Context, op, email, codeHash string, at time.Time) error {
	cur, err := r.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	reason := domain.RejectReason(cur, codeHash, at)
	if reason == nil {
		reason = domain.ErrInvalidCode
	}
	return fmt.Errorf("%s %s: %w", op, email, reason)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
