package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authflow/server/internal/apperr"
	"github.com/authflow/server/internal/auth"
	"github.com/authflow/server/internal/middleware"
	"github.com/authflow/server/internal/model"
)

type fakeService struct {
	registerFn func(context.Context, auth.RegisterInput) (*model.User, error)
	loginFn    func(context.Context, string, string) (string, error)
	profileFn  func(context.Context, string) (model.User, error)
	resendFn   func(context.Context, string) (string, error)
	verifyFn   func(context.Context, string, string) error
}

func (f *fakeService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
	return f.registerFn(ctx, in)
}

func (f *fakeService) Login(ctx context.Context, email, password string) (string, error) {
	return f.loginFn(ctx, email, password)
}

func (f *fakeService) Profile(ctx context.Context, email string) (model.User, error) {
	return f.profileFn(ctx, email)
}

func (f *fakeService) ResendCode(ctx context.Context, email string) (string, error) {
	return f.resendFn(ctx, email)
}

func (f *fakeService) VerifyEmail(ctx context.Context, email, code string) error {
	return f.verifyFn(ctx, email, code)
}

func newTestHandler(svc *fakeService, limiter *middleware.RateLimiter, devMode bool) *AuthHandler {
	return NewAuthHandler(svc, limiter, slog.New(slog.NewTextHandler(io.Discard, nil)), devMode)
}

func do(h http.HandlerFunc, method, body string, identity *auth.Identity) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if identity != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), *identity))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleRegister_success(t *testing.T) {
	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	var got auth.RegisterInput
	svc := &fakeService{registerFn: func(_ context.Context, in auth.RegisterInput) (*model.User, error) {
		got = in
		return &model.User{
			ID:                uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7"),
			Name:              in.FullName,
			Email:             "john@example.com",
			PasswordHash:      "$2a$10$secret-hash",
			MobileCountryCode: in.MobileCountryCode,
			Mobile:            in.Mobile,
			Token:             "tok",
			CreatedAt:         created,
		}, nil
	}}
	h := newTestHandler(svc, nil, false)

	rec := do(h.HandleRegister, http.MethodPost,
		`{"fullName":"John","email":"john@example.com","password":"secret1","mobile_country_code":"+1","mobile":"555"}`, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "John", got.FullName)
	assert.Equal(t, "secret1", got.Password)

	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.EqualValues(t, 201, body["statusCode"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "7c9e6679-7425-40de-944b-e07fc1f90ae7", data["id"])
	assert.Equal(t, "tok", data["token"])
	assert.Equal(t, false, data["email_verified"])
	assert.Equal(t, "2026-02-03T04:05:06Z", data["created_at"])
	assert.NotContains(t, data, "password")
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestHandleRegister_badBodies(t *testing.T) {
	svc := &fakeService{registerFn: func(context.Context, auth.RegisterInput) (*model.User, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	h := newTestHandler(svc, nil, false)

	for _, body := range []string{
		``,
		`not json`,
		`{"fullName":"a","email":"a@x.com","password":"secret1","role":"admin"}`,
		`{"fullName":"a"}{"fullName":"b"}`,
		`["a"]`,
	} {
		rec := do(h.HandleRegister, http.MethodPost, body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		resp := decode(t, rec)
		assert.Equal(t, "error", resp["status"], body)
		assert.EqualValues(t, 400, resp["statusCode"], body)
	}
}

func TestHandleRegister_serviceErrors(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{auth.ErrEmailTaken, http.StatusConflict, "email already registered"},
		{apperr.New(apperr.KindValidation, "invalid email address"), http.StatusBadRequest, "invalid email address"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		svc := &fakeService{registerFn: func(context.Context, auth.RegisterInput) (*model.User, error) {
			return nil, tc.err
		}}
		rec := do(newTestHandler(svc, nil, false).HandleRegister, http.MethodPost,
			`{"fullName":"a","email":"a@x.com","password":"secret1"}`, nil)

		assert.Equal(t, tc.status, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "error", body["status"])
		assert.EqualValues(t, tc.status, body["statusCode"])
		assert.Equal(t, tc.message, body["message"])
	}
}

func TestHandleLogin(t *testing.T) {
	svc := &fakeService{loginFn: func(_ context.Context, email, password string) (string, error) {
		if email == "" || password == "" {
			return "", apperr.New(apperr.KindValidation, "Email and password are required")
		}
		if password != "secret1" {
			return "", auth.ErrInvalidCredentials
		}
		return "tok", nil
	}}
	h := newTestHandler(svc, nil, false)

	rec := do(h.HandleLogin, http.MethodPost, `{"email":"a@x.com","password":"secret1"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"token": "tok"}, decode(t, rec))

	rec = do(h.HandleLogin, http.MethodPost, `{"email":"a@x.com","password":"nope"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, map[string]any{"error": "Invalid email or password"}, decode(t, rec))

	rec = do(h.HandleLogin, http.MethodPost, `{"email":"a@x.com"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"error": "Email and password are required"}, decode(t, rec))

	rec = do(h.HandleLogin, http.MethodPost, `{"email":"a@x.com","password":"x","extra":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLogin_throttlesFailures(t *testing.T) {
	calls := 0
	svc := &fakeService{loginFn: func(_ context.Context, _, password string) (string, error) {
		calls++
		if password != "secret1" {
			return "", auth.ErrInvalidCredentials
		}
		return "tok", nil
	}}
	limiter := middleware.NewRateLimiter(time.Minute, 2)
	defer limiter.Stop()
	h := newTestHandler(svc, limiter, false)

	for i := 0; i < 2; i++ {
		rec := do(h.HandleLogin, http.MethodPost, `{"email":"a@x.com","password":"bad"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := do(h.HandleLogin, http.MethodPost, `{"email":"A@x.com","password":"secret1"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 2, calls)

	rec = do(h.HandleLogin, http.MethodPost, `{"email":"b@x.com","password":"secret1"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleUserData(t *testing.T) {
	svc := &fakeService{profileFn: func(_ context.Context, email string) (model.User, error) {
		if email == "a@x.com" {
			return model.User{Name: "Alice", Email: email, PasswordHash: "hash"}, nil
		}
		return model.User{}, auth.ErrUnknownAccount
	}}
	h := newTestHandler(svc, nil, false)

	rec := do(h.HandleUserData, http.MethodGet, "", &auth.Identity{Email: "a@x.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "success", "data": map[string]any{"name": "Alice"}}, decode(t, rec))

	rec = do(h.HandleUserData, http.MethodGet, "", &auth.Identity{Email: "ghost@x.com"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "error", decode(t, rec)["status"])

	rec = do(h.HandleUserData, http.MethodGet, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleVerifyEmail(t *testing.T) {
	var gotEmail, gotCode string
	svc := &fakeService{verifyFn: func(_ context.Context, email, code string) error {
		gotEmail, gotCode = email, code
		if code != "123456" {
			return auth.ErrInvalidCode
		}
		return nil
	}}
	h := newTestHandler(svc, nil, false)
	id := &auth.Identity{Email: "a@x.com"}

	rec := do(h.HandleVerifyEmail, http.MethodPost, `{"code":"123456"}`, id)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "success"}, decode(t, rec))
	assert.Equal(t, "a@x.com", gotEmail)
	assert.Equal(t, "123456", gotCode)

	rec = do(h.HandleVerifyEmail, http.MethodPost, `{"code":"000000"}`, id)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid or expired verification code", decode(t, rec)["message"])

	rec = do(h.HandleVerifyEmail, http.MethodPost, `{"code":"1","email":"b@x.com"}`, id)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleResendCode(t *testing.T) {
	svc := &fakeService{resendFn: func(context.Context, string) (string, error) {
		return "424242", nil
	}}
	id := &auth.Identity{Email: "a@x.com"}

	rec := do(newTestHandler(svc, nil, false).HandleResendCode, http.MethodPost, "", id)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "success"}, decode(t, rec))

	rec = do(newTestHandler(svc, nil, true).HandleResendCode, http.MethodPost, "", id)
	assert.Equal(t, map[string]any{"status": "success", "dev_code": "424242"}, decode(t, rec))

	svc.resendFn = func(context.Context, string) (string, error) { return "", auth.ErrTooManyCodeRequests }
	rec = do(newTestHandler(svc, nil, true).HandleResendCode, http.MethodPost, "", id)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.EqualValues(t, 429, decode(t, rec)["statusCode"])
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}
