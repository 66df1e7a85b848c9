package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/authflow/server/internal/apperr"
	"github.com/authflow/server/internal/auth"
	"github.com/authflow/server/internal/logging"
	"github.com/authflow/server/internal/middleware"
	"github.com/authflow/server/internal/model"
)

const maxBodyBytes = 1 << 20

// AuthService is the behaviour AuthHandler needs from auth.AuthService
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	Profile(ctx context.Context, email string) (model.User, error)
	ResendCode(ctx context.Context, email string) (string, error)
	VerifyEmail(ctx context.Context, email, code string) error
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService  AuthService
	loginLimiter *middleware.RateLimiter
	logger       *slog.Logger
	devMode      bool
}

// NewAuthHandler creates a new auth handler. loginLimiter counts failed
// logins per email; nil disables the throttle.
func NewAuthHandler(
	authService AuthService,
	loginLimiter *middleware.RateLimiter,
	logger *slog.Logger,
	devMode bool,
) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		loginLimiter: loginLimiter,
		logger:       logger,
		devMode:      devMode,
	}
}

// registerRequest is the request body for POST /api/auth/register
type registerRequest struct {
	FullName          string `json:"fullName"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	MobileCountryCode string `json:"mobile_country_code"`
	Mobile            string `json:"mobile"`
}

// userResponse is the user object returned after registration
type userResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	MobileCountryCode string `json:"mobile_country_code"`
	Mobile            string `json:"mobile"`
	EmailVerified     bool   `json:"email_verified"`
	Token             string `json:"token"`
	CreatedAt         string `json:"created_at"`
}

type registerResponse struct {
	Status     string       `json:"status"`
	StatusCode int          `json:"statusCode"`
	Message    string       `json:"message"`
	Data       userResponse `json:"data"`
}

// loginRequest is the request body for POST /api/auth/login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type profileData struct {
	Name string `json:"name"`
}

type profileResponse struct {
	Status string      `json:"status"`
	Data   profileData `json:"data"`
}

// verifyEmailRequest is the request body for POST /api/auth/verify-email
type verifyEmailRequest struct {
	Code string `json:"code"`
}

type statusResponse struct {
	Status  string `json:"status"`
	DevCode string `json:"dev_code,omitempty"`
}

// errorEnvelope is the error body of the register, profile and verification endpoints
type errorEnvelope struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// HandleRegister handles POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeStrict(w, r, &req); err != nil {
		h.respondWithEnvelope(w, r, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}

	user, err := h.authService.Register(r.Context(), auth.RegisterInput{
		FullName:          req.FullName,
		Email:             req.Email,
		Password:          req.Password,
		MobileCountryCode: req.MobileCountryCode,
		Mobile:            req.Mobile,
	})
	if err != nil {
		h.respondWithEnvelope(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, registerResponse{
		Status:     "success",
		StatusCode: http.StatusCreated,
		Message:    "Account created successfully",
		Data: userResponse{
			ID:                user.ID.String(),
			Name:              user.Name,
			Email:             user.Email,
			MobileCountryCode: user.MobileCountryCode,
			Mobile:            user.Mobile,
			EmailVerified:     user.EmailVerified,
			Token:             user.Token,
			CreatedAt:         user.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeStrict(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := middleware.GetEmailKey(req.Email)
	if h.loginLimiter != nil && h.loginLimiter.Blocked(key) {
		h.logger.WarnContext(r.Context(), "login throttled", "email", logging.MaskEmail(req.Email))
		respondWithError(w, http.StatusTooManyRequests, "too many failed login attempts, try again later")
		return
	}

	token, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.loginLimiter != nil && errors.Is(err, auth.ErrInvalidCredentials) {
			h.loginLimiter.Allow(key)
		}
		h.logFailure(r, "login failed", err)
		respondWithError(w, apperr.KindOf(err).HTTPStatus(), apperr.MessageOf(err))
		return
	}
	if h.loginLimiter != nil {
		h.loginLimiter.Reset(key)
	}

	h.respondJSON(w, http.StatusOK, loginResponse{Token: token})
}

// HandleUserData handles GET /api/auth/user-data (protected)
func (h *AuthHandler) HandleUserData(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.respondWithEnvelope(w, r, auth.ErrUnknownAccount)
		return
	}

	user, err := h.authService.Profile(r.Context(), identity.Email)
	if err != nil {
		h.respondWithEnvelope(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, profileResponse{
		Status: "success",
		Data:   profileData{Name: user.Name},
	})
}

// HandleVerifyEmail handles POST /api/auth/verify-email (protected)
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.respondWithEnvelope(w, r, auth.ErrUnknownAccount)
		return
	}

	var req verifyEmailRequest
	if err := decodeStrict(w, r, &req); err != nil {
		h.respondWithEnvelope(w, r, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}

	if err := h.authService.VerifyEmail(r.Context(), identity.Email, req.Code); err != nil {
		h.respondWithEnvelope(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

// HandleResendCode handles POST /api/auth/verify-email/resend-code (protected)
func (h *AuthHandler) HandleResendCode(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.respondWithEnvelope(w, r, auth.ErrUnknownAccount)
		return
	}

	code, err := h.authService.ResendCode(r.Context(), identity.Email)
	if err != nil {
		h.respondWithEnvelope(w, r, err)
		return
	}

	response := statusResponse{Status: "success"}
	if h.devMode {
		response.DevCode = code
	}
	h.respondJSON(w, http.StatusOK, response)
}

// decodeStrict decodes a single JSON object and rejects unknown fields.
func decodeStrict(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func (h *AuthHandler) respondWithEnvelope(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.KindOf(err).HTTPStatus()
	h.logFailure(r, "request failed", err)
	h.respondJSON(w, status, errorEnvelope{
		Status:     "error",
		StatusCode: status,
		Message:    apperr.MessageOf(err),
	})
}

func (h *AuthHandler) logFailure(r *http.Request, msg string, err error) {
	level := slog.LevelInfo
	if apperr.KindOf(err) == apperr.KindInternal {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, msg,
		"path", r.URL.Path,
		"kind", apperr.KindOf(err).String(),
		"error", err,
	)
}

func (h *AuthHandler) respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
