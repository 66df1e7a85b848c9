package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/authflow/server/internal/apperr"
	"github.com/authflow/server/internal/logging"
	mailer "github.com/authflow/server/internal/mail"
	"github.com/authflow/server/internal/metrics"
	"github.com/authflow/server/internal/model"
	"github.com/authflow/server/internal/repo"
)

const minPasswordChars = 6

// RegisterInput is the validated shape of a registration request
type RegisterInput struct {
	FullName          string
	Email             string
	Password          string
	MobileCountryCode string
	Mobile            string
}

// Options tunes optional AuthService behaviour
type Options struct {
	RequireVerifiedEmail bool
	Logger               *slog.Logger
}

// AuthService orchestrates authentication operations
type AuthService struct {
	users           repo.UserRepo
	codes           CodeProvider
	tokens          *JWTService
	passwords       *PasswordHasher
	mailer          mailer.Mailer
	logger          *slog.Logger
	requireVerified bool
	dummyHash       string
	now             func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(
	users repo.UserRepo,
	codes CodeProvider,
	tokens *JWTService,
	passwords *PasswordHasher,
	m mailer.Mailer,
	opts Options,
) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// compared against when the email is unknown
	dummyHash, err := passwords.Hash("not-a-real-password")
	if err != nil {
		logger.Warn("failed to prepare dummy password hash", "error", err)
	}
	return &AuthService{
		users:           users,
		codes:           codes,
		tokens:          tokens,
		passwords:       passwords,
		mailer:          m,
		logger:          logger,
		requireVerified: opts.RequireVerifiedEmail,
		dummyHash:       dummyHash,
		now:             time.Now,
	}
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates the account, mints its first token and sends a verification code.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	user, err := s.register(ctx, in)
	metrics.ObserveRegistration(resultLabel(err))
	return user, err
}

func (s *AuthService) register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = NormalizeEmail(in.Email)
	if err := validateRegister(in); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.SignToken(in.Email)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &model.User{
		Name:              in.FullName,
		Email:             in.Email,
		PasswordHash:      hash,
		MobileCountryCode: strings.TrimSpace(in.MobileCountryCode),
		Mobile:            strings.TrimSpace(in.Mobile),
		Token:             token,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "email", logging.MaskEmail(user.Email))

	if _, err := s.sendCode(ctx, user.Email, "register"); err != nil {
		s.logger.WarnContext(ctx, "verification code not delivered after registration",
			"email", logging.MaskEmail(user.Email), "error", err)
	}
	return user, nil
}

// Login checks credentials and returns a fresh bearer token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	token, err := s.login(ctx, email, password)
	metrics.ObserveLogin(resultLabel(err))
	return token, err
}

func (s *AuthService) login(ctx context.Context, email, password string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return "", apperr.New(apperr.KindValidation, "Email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.passwords.Compare(s.dummyHash, password)
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to load user: %w", err)
	}

	if !s.passwords.Compare(user.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}
	if s.requireVerified && !user.EmailVerified {
		return "", ErrEmailNotVerified
	}

	return s.tokens.SignToken(user.Email)
}

// Profile returns the account behind an authenticated identity.
func (s *AuthService) Profile(ctx context.Context, email string) (model.User, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, ErrUnknownAccount
		}
		return model.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// ResendCode issues and mails a new code. It returns the code so callers in
// development mode can echo it; an already verified account gets "" and no code.
func (s *AuthService) ResendCode(ctx context.Context, email string) (string, error) {
	user, err := s.Profile(ctx, email)
	if err != nil {
		return "", err
	}
	if user.EmailVerified {
		return "", nil
	}
	return s.sendCode(ctx, user.Email, "resend")
}

// VerifyEmail marks the account verified when code matches its active code.
// Repeating a successful verification with the same code succeeds without
// changing anything.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) error {
	err := s.verifyEmail(ctx, email, code)
	metrics.ObserveEmailVerification(resultLabel(err))
	return err
}

func (s *AuthService) verifyEmail(ctx context.Context, email, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return apperr.New(apperr.KindValidation, "verification code is required")
	}

	user, err := s.Profile(ctx, email)
	if err != nil {
		return err
	}

	if user.EmailVerified {
		ok, err := s.codes.MatchesIssuedCode(ctx, user.Email, code)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidCode
		}
		return nil
	}

	if err := s.codes.VerifyCode(ctx, user.Email, code); err != nil {
		return err
	}

	changed, err := s.users.MarkEmailVerified(ctx, user.Email, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	if changed {
		s.logger.InfoContext(ctx, "email verified", "user_id", user.ID, "email", logging.MaskEmail(user.Email))
	}
	return nil
}

func (s *AuthService) sendCode(ctx context.Context, email, flow string) (string, error) {
	code, expiresAt, err := s.codes.IssueCode(ctx, email)
	if err != nil {
		metrics.ObserveCodeIssued(flow, resultLabel(err))
		return "", err
	}
	if err := s.mailer.SendVerificationCode(ctx, email, code, expiresAt); err != nil {
		metrics.ObserveCodeIssued(flow, "mail_failed")
		return "", apperr.Wrap(apperr.KindInternal, "failed to send verification email", err)
	}
	metrics.ObserveCodeIssued(flow, "success")
	return code, nil
}

func validateRegister(in RegisterInput) error {
	if in.FullName == "" || in.Email == "" || in.Password == "" {
		return apperr.New(apperr.KindValidation, "fullName, email and password are required")
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return apperr.New(apperr.KindValidation, "invalid email address")
	}
	if utf8.RuneCountInString(in.Password) < minPasswordChars {
		return apperr.New(apperr.KindValidation, "password must be at least 6 characters")
	}
	if len(in.Password) > MaxPasswordBytes {
		return apperr.New(apperr.KindValidation, "password must be at most 72 bytes")
	}
	return nil
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return apperr.KindOf(err).String()
}
