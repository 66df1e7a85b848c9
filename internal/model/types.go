package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account
type User struct {
	ID                uuid.UUID
	Name              string
	Email             string
	PasswordHash      string
	MobileCountryCode string
	Mobile            string
	EmailVerified     bool
	// Token is the last token issued at registration. Informational only: it is
	// never consulted when verifying requests.
	Token     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VerificationCode is a one-time email verification code. Only its hash is stored.
type VerificationCode struct {
	ID            uuid.UUID
	Email         string
	CodeHash      []byte
	ExpiresAt     time.Time
	ConsumedAt    *time.Time
	AttemptCount  int
	LastAttemptAt *time.Time
	CreatedAt     time.Time
}
