package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/authflow/server/internal/db"
	"github.com/authflow/server/internal/model"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when the users.email unique constraint rejects an insert.
	ErrDuplicateEmail = errors.New("email already exists")
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	MarkEmailVerified(ctx context.Context, email string, at time.Time) (bool, error)
}

type userRepo struct {
	conn    *sql.DB
	dialect db.Dialect
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(conn *sql.DB, dialect db.Dialect) UserRepo {
	return &userRepo{conn: conn, dialect: dialect}
}

const userColumns = `id, name, email, password_hash, mobile_country_code, mobile, email_verified, token, created_at, updated_at`

// Create inserts a new user. ID and timestamps are filled in when zero.
func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	query := r.dialect.Rebind(`
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	_, err := r.conn.ExecContext(ctx, query,
		user.ID.String(),
		user.Name,
		user.Email,
		user.PasswordHash,
		user.MobileCountryCode,
		user.Mobile,
		user.EmailVerified,
		user.Token,
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := r.dialect.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = $1`)
	return r.scanOne(r.conn.QueryRowContext(ctx, query, id.String()))
}

// GetByEmail retrieves a user by email
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := r.dialect.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = $1`)
	return r.scanOne(r.conn.QueryRowContext(ctx, query, email))
}

// MarkEmailVerified flips email_verified from false to true. It reports whether
// this call changed the row; an already verified user yields false.
func (r *userRepo) MarkEmailVerified(ctx context.Context, email string, at time.Time) (bool, error) {
	query := r.dialect.Rebind(`
		UPDATE users
		SET email_verified = $1, updated_at = $2
		WHERE email = $3 AND email_verified = $4
	`)
	result, err := r.conn.ExecContext(ctx, query, true, toMillis(at), email, false)
	if err != nil {
		return false, fmt.Errorf("failed to mark email verified: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *userRepo) scanOne(row *sql.Row) (model.User, error) {
	var user model.User
	var idStr string
	var createdAt, updatedAt int64
	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.MobileCountryCode,
		&user.Mobile,
		&user.EmailVerified,
		&user.Token,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, fmt.Errorf("user: %w", ErrNotFound)
		}
		return model.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
