package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/authflow/server/internal/repo"
)

const (
	codeDigits           = 6
	maxAttempts          = 5
	requestWindow        = 10 * time.Minute
	maxRequestsPerWindow = 3
	// issued codes checked when an already verified user resubmits
	recentCodesChecked = 5
)

// CodeStore implements CodeProvider with database-backed codes
type CodeStore struct {
	codes repo.VerificationRepo
	salt  string
	ttl   time.Duration
	now   func() time.Time
}

// NewCodeStore creates a new verification code provider
func NewCodeStore(codes repo.VerificationRepo, salt string, ttl time.Duration) *CodeStore {
	return &CodeStore{
		codes: codes,
		salt:  salt,
		ttl:   ttl,
		now:   time.Now,
	}
}

// IssueCode generates a fresh code for the email and replaces any outstanding one.
// Rate limit: max 3 codes per 10 min per email. Only the hash is stored.
func (p *CodeStore) IssueCode(ctx context.Context, email string) (string, time.Time, error) {
	now := p.now().UTC()
	count, err := p.codes.CountRecentRequests(ctx, email, now.Add(-requestWindow))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("rate limit check: %w", err)
	}
	if count >= maxRequestsPerWindow {
		return "", time.Time{}, ErrTooManyCodeRequests
	}

	code, err := generateCode()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate code: %w", err)
	}

	expiresAt := now.Add(p.ttl)
	if _, err := p.codes.CreateOrReplace(ctx, email, hashCodeHex(email, code, p.salt), expiresAt, now); err != nil {
		return "", time.Time{}, fmt.Errorf("create code: %w", err)
	}
	return code, expiresAt, nil
}

// VerifyCode checks code against the active code for the email. Every check
// counts as an attempt; a match or the last allowed attempt consumes the code.
func (p *CodeStore) VerifyCode(ctx context.Context, email, code string) error {
	now := p.now().UTC()
	active, err := p.codes.GetActiveByEmail(ctx, email, now, maxAttempts)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("load code: %w", err)
	}

	newCount, err := p.codes.IncrementAttempt(ctx, active.ID, now)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	if constantTimeCompare(hashCodeBytes(email, code, p.salt), active.CodeHash) {
		if err := p.codes.MarkConsumed(ctx, active.ID, now); err != nil {
			return fmt.Errorf("failed to consume code: %w", err)
		}
		return nil
	}

	if newCount >= maxAttempts {
		_ = p.codes.MarkConsumed(ctx, active.ID, now)
	}
	return ErrInvalidCode
}

// MatchesIssuedCode reports whether code matches one of the recently issued
// codes for the email, consumed or not.
func (p *CodeStore) MatchesIssuedCode(ctx context.Context, email, code string) (bool, error) {
	issued, err := p.codes.ListRecentByEmail(ctx, email, recentCodesChecked)
	if err != nil {
		return false, fmt.Errorf("list codes: %w", err)
	}
	provided := hashCodeBytes(email, code, p.salt)
	for _, c := range issued {
		if constantTimeCompare(provided, c.CodeHash) {
			return true, nil
		}
	}
	return false, nil
}

func generateCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// hashCodeHex returns SHA-256(email:code:salt) as hex for DB storage
func hashCodeHex(email, code, salt string) string {
	return hex.EncodeToString(hashCodeBytes(email, code, salt))
}

func hashCodeBytes(email, code, salt string) []byte {
	data := fmt.Sprintf("%s:%s:%s", email, code, salt)
	hash := sha256.Sum256([]byte(data))
	return hash[:]
}

func constantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
