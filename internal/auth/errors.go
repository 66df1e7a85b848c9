package auth

import "github.com/authflow/server/internal/apperr"

var (
	ErrInvalidCredentials  = apperr.New(apperr.KindUnauthenticated, "Invalid email or password")
	ErrEmailNotVerified    = apperr.New(apperr.KindForbidden, "Email not verified")
	ErrEmailTaken          = apperr.New(apperr.KindConflict, "email already registered")
	ErrUnknownAccount      = apperr.New(apperr.KindUnauthenticated, "account not found")
	ErrInvalidCode         = apperr.New(apperr.KindValidation, "invalid or expired verification code")
	ErrTooManyCodeRequests = apperr.New(apperr.KindRateLimited, "too many verification code requests, try again later")
)
