package repo

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/authflow/server/internal/db"
	"github.com/authflow/server/internal/model"
)

// VerificationRepo defines the interface for email verification code storage
type VerificationRepo interface {
	CreateOrReplace(ctx context.Context, email, codeHashHex string, expiresAt, now time.Time) (uuid.UUID, error)
	GetActiveByEmail(ctx context.Context, email string, now time.Time, maxAttempts int) (model.VerificationCode, error)
	ListRecentByEmail(ctx context.Context, email string, limit int) ([]model.VerificationCode, error)
	MarkConsumed(ctx context.Context, codeID uuid.UUID, now time.Time) error
	IncrementAttempt(ctx context.Context, codeID uuid.UUID, now time.Time) (newAttemptCount int, err error)
	CountRecentRequests(ctx context.Context, email string, since time.Time) (int, error)
}

type verificationRepo struct {
	conn    *sql.DB
	dialect db.Dialect
}

// NewVerificationRepo creates a new VerificationRepo instance
func NewVerificationRepo(conn *sql.DB, dialect db.Dialect) VerificationRepo {
	return &verificationRepo{conn: conn, dialect: dialect}
}

const codeColumns = `id, email, code_hash, expires_at, consumed_at, attempt_count, last_attempt_at, created_at`

// CreateOrReplace keeps at most one outstanding code per email: it consumes any
// unconsumed code and inserts the new one in a single transaction.
func (r *verificationRepo) CreateOrReplace(ctx context.Context, email, codeHashHex string, expiresAt, now time.Time) (uuid.UUID, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.dialect.Rebind(`
		UPDATE email_verification_codes
		SET consumed_at = $1
		WHERE email = $2 AND consumed_at IS NULL
	`), toMillis(now), email)
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume existing codes: %w", err)
	}

	id := uuid.New()
	_, err = tx.ExecContext(ctx, r.dialect.Rebind(`
		INSERT INTO email_verification_codes (id, email, code_hash, expires_at, attempt_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`), id.String(), email, codeHashHex, toMillis(expiresAt), 0, toMillis(now))
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// GetActiveByEmail returns the newest unconsumed, unexpired code with attempts left.
func (r *verificationRepo) GetActiveByEmail(ctx context.Context, email string, now time.Time, maxAttempts int) (model.VerificationCode, error) {
	query := r.dialect.Rebind(`
		SELECT ` + codeColumns + `
		FROM email_verification_codes
		WHERE email = $1
		  AND consumed_at IS NULL
		  AND expires_at > $2
		  AND attempt_count < $3
		ORDER BY created_at DESC
		LIMIT 1
	`)
	code, err := scanCode(r.conn.QueryRowContext(ctx, query, email, toMillis(now), maxAttempts))
	if errors.Is(err, sql.ErrNoRows) {
		return model.VerificationCode{}, fmt.Errorf("code: %w", ErrNotFound)
	}
	return code, err
}

// ListRecentByEmail returns up to limit codes for the email, newest first, in any state.
func (r *verificationRepo) ListRecentByEmail(ctx context.Context, email string, limit int) ([]model.VerificationCode, error) {
	query := r.dialect.Rebind(`
		SELECT ` + codeColumns + `
		FROM email_verification_codes
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT $2
	`)
	rows, err := r.conn.QueryContext(ctx, query, email, limit)
	if err != nil {
		return nil, fmt.Errorf("query codes: %w", err)
	}
	defer rows.Close()

	var codes []model.VerificationCode
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate codes: %w", err)
	}
	return codes, nil
}

// MarkConsumed sets consumed_at for the code.
func (r *verificationRepo) MarkConsumed(ctx context.Context, codeID uuid.UUID, now time.Time) error {
	result, err := r.conn.ExecContext(ctx, r.dialect.Rebind(`
		UPDATE email_verification_codes SET consumed_at = $1 WHERE id = $2
	`), toMillis(now), codeID.String())
	if err != nil {
		return fmt.Errorf("mark consumed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("code: %w", ErrNotFound)
	}
	return nil
}

// IncrementAttempt bumps attempt_count and last_attempt_at; returns the new attempt_count.
func (r *verificationRepo) IncrementAttempt(ctx context.Context, codeID uuid.UUID, now time.Time) (int, error) {
	var newCount int
	err := r.conn.QueryRowContext(ctx, r.dialect.Rebind(`
		UPDATE email_verification_codes
		SET attempt_count = attempt_count + 1, last_attempt_at = $1
		WHERE id = $2
		RETURNING attempt_count
	`), toMillis(now), codeID.String()).Scan(&newCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("code: %w", ErrNotFound)
		}
		return 0, fmt.Errorf("increment attempt: %w", err)
	}
	return newCount, nil
}

// CountRecentRequests returns the number of codes issued for the email since the given time.
func (r *verificationRepo) CountRecentRequests(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := r.conn.QueryRowContext(ctx, r.dialect.Rebind(`
		SELECT COUNT(*) FROM email_verification_codes
		WHERE email = $1 AND created_at >= $2
	`), email, toMillis(since)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent requests: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanCode wraps scan errors with %w, so callers can still match sql.ErrNoRows.
func scanCode(row rowScanner) (model.VerificationCode, error) {
	var code model.VerificationCode
	var idStr, codeHashHex string
	var expiresAt, createdAt int64
	var consumedAt, lastAttemptAt sql.NullInt64
	err := row.Scan(
		&idStr,
		&code.Email,
		&codeHashHex,
		&expiresAt,
		&consumedAt,
		&code.AttemptCount,
		&lastAttemptAt,
		&createdAt,
	)
	if err != nil {
		return model.VerificationCode{}, fmt.Errorf("query code: %w", err)
	}

	code.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.VerificationCode{}, fmt.Errorf("parse code ID: %w", err)
	}
	code.CodeHash, err = hex.DecodeString(codeHashHex)
	if err != nil {
		return model.VerificationCode{}, fmt.Errorf("decode code_hash: %w", err)
	}
	code.ExpiresAt = fromMillis(expiresAt)
	code.CreatedAt = fromMillis(createdAt)
	if consumedAt.Valid {
		t := fromMillis(consumedAt.Int64)
		code.ConsumedAt = &t
	}
	if lastAttemptAt.Valid {
		t := fromMillis(lastAttemptAt.Int64)
		code.LastAttemptAt = &t
	}
	return code, nil
}
