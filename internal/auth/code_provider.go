package auth

import (
	"context"
	"time"
)

// CodeProvider defines the interface for email verification code operations
type CodeProvider interface {
	IssueCode(ctx context.Context, email string) (code string, expiresAt time.Time, err error)
	VerifyCode(ctx context.Context, email, code string) error
	MatchesIssuedCode(ctx context.Context, email, code string) (bool, error)
}
