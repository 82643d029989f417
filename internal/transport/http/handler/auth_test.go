package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-otp-auth/internal/application/auth"
	"github.com/go-otp-auth/internal/application/notification"
	"github.com/go-otp-auth/internal/domain"
	jwtinfra "github.com/go-otp-auth/internal/infrastructure/jwt"
	"github.com/go-otp-auth/internal/transport/http/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockAuthSvc struct{ mock.Mock }

func (m *mockAuthSvc) Signup(ctx context.Context, req domain.SignupRequest) (*auth.SignupResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*auth.SignupResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthSvc) Verify(ctx context.Context, req domain.VerifyOTPRequest) (*auth.AuthResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*auth.AuthResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthSvc) Resend(ctx context.Context, req domain.ResendOTPRequest) (*auth.ResendResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*auth.ResendResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthSvc) Login(ctx context.Context, req domain.LoginRequest) (*auth.AuthResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*auth.AuthResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockChecker struct{ mock.Mock }

func (m *mockChecker) Check(ctx context.Context) notification.Health {
	return m.Called(ctx).Get(0).(notification.Health)
}

// --- helpers ---

func post(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw)))
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorEnvelope {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	return env
}

var verifiedAccount = &domain.Account{AccountID: "01HZACCOUNT", Email: "a@x.com", Verified: true}

// --- Signup ---

func TestSignup_Delivered(t *testing.T) {
	svc := &mockAuthSvc{}
	req := domain.SignupRequest{Email: "a@x.com", Password: "secret123"}
	svc.On("Signup", mock.Anything, req).
		Return(&auth.SignupResult{Email: "a@x.com", Method: notification.MethodEmail}, nil)

	rr := post(t, NewAuthHandler(svc).Signup, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	var env SignupEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	assert.Equal(t, "a@x.com", env.Email)
	assert.False(t, env.PendingDelivery)
	assert.Equal(t, "Signup successful. OTP sent to your email.", env.Message)
}

func TestSignup_PendingDelivery(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Signup", mock.Anything, mock.Anything).
		Return(&auth.SignupResult{Email: "a@x.com", PendingDelivery: true, Method: notification.MethodConsoleFallback}, nil)

	rr := post(t, NewAuthHandler(svc).Signup, domain.SignupRequest{Email: "a@x.com", Password: "secret123"})
	assert.Equal(t, http.StatusAccepted, rr.Code)
	var env SignupEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	assert.True(t, env.PendingDelivery)
	assert.Equal(t, notification.MethodConsoleFallback, env.Method)
}

func TestSignup_Duplicate(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Signup", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("insert: %w", domain.ErrDuplicateAccount))

	rr := post(t, NewAuthHandler(svc).Signup, domain.SignupRequest{Email: "a@x.com", Password: "secret123"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeError(t, rr)
	assert.Equal(t, "User already exists", env.Error)
	assert.Equal(t, domain.KindDuplicateAccount, env.Kind)
}

func TestSignup_InvalidBody(t *testing.T) {
	rr := httptest.NewRecorder()
	NewAuthHandler(&mockAuthSvc{}).Signup(rr, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, domain.KindInvalidInput, decodeError(t, rr).Kind)
}

func TestSignup_ValidationMessage(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Signup", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: %v", domain.ErrBadRequest, errors.New("password must be at least 6 characters")))

	rr := post(t, NewAuthHandler(svc).Signup, domain.SignupRequest{Email: "a@x.com", Password: "1"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "password must be at least 6 characters", decodeError(t, rr).Error)
}

func TestSignup_InternalErrorIsGeneric(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Signup", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("insert pending account: %w", domain.ErrInternal))

	rr := post(t, NewAuthHandler(svc).Signup, domain.SignupRequest{Email: "a@x.com", Password: "secret123"})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	env := decodeError(t, rr)
	assert.Equal(t, "Internal server error", env.Error)
	assert.NotContains(t, rr.Body.String(), "insert pending")
}

// --- Verify ---

func TestVerifyOTP_Success(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Verify", mock.Anything, domain.VerifyOTPRequest{Email: "a@x.com", OTP: "123456"}).
		Return(&auth.AuthResult{Token: "tok", Account: verifiedAccount}, nil)

	rr := post(t, NewAuthHandler(svc).VerifyOTP, domain.VerifyOTPRequest{Email: "a@x.com", OTP: "123456"})
	assert.Equal(t, http.StatusOK, rr.Code)
	var env AuthEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	assert.Equal(t, "tok", env.Token)
	assert.Equal(t, "a@x.com", env.User.Email)
	assert.NotContains(t, rr.Body.String(), "password")
}

func TestVerifyOTP_Outcomes(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{domain.ErrNotFound, http.StatusBadRequest, "No pending verification found. Please sign up."},
		{domain.ErrExpired, http.StatusBadRequest, "OTP expired. Please request a new one."},
		{domain.ErrTooManyAttempts, http.StatusBadRequest, "Too many failed attempts. Please request a new OTP."},
		{domain.ErrAlreadyVerified, http.StatusBadRequest, "User already verified. Please log in."},
		{domain.ErrDependencyTimeout, http.StatusInternalServerError, "Service temporarily unavailable, please retry"},
	}
	for _, tc := range cases {
		t.Run(domain.KindOf(tc.err), func(t *testing.T) {
			svc := &mockAuthSvc{}
			svc.On("Verify", mock.Anything, mock.Anything).Return(nil, tc.err)

			rr := post(t, NewAuthHandler(svc).VerifyOTP, domain.VerifyOTPRequest{Email: "a@x.com", OTP: "123456"})
			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, tc.msg, decodeError(t, rr).Error)
		})
	}
}

func TestVerifyOTP_AttemptsRemaining(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Verify", mock.Anything, mock.Anything).Return(nil, &domain.AttemptError{Remaining: 2})

	rr := post(t, NewAuthHandler(svc).VerifyOTP, domain.VerifyOTPRequest{Email: "a@x.com", OTP: "000000"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeError(t, rr)
	assert.Equal(t, domain.KindInvalidCode, env.Kind)
	require.NotNil(t, env.AttemptsRemaining)
	assert.Equal(t, 2, *env.AttemptsRemaining)
	assert.Equal(t, "Invalid OTP. 2 attempts remaining", env.Error)
}

func TestVerifyOTP_LastAttemptUsesCamelCaseField(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Verify", mock.Anything, mock.Anything).Return(nil, &domain.AttemptError{Remaining: 0})

	rr := post(t, NewAuthHandler(svc).VerifyOTP, domain.VerifyOTPRequest{Email: "a@x.com", OTP: "000000"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var raw map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&raw))
	assert.Equal(t, domain.KindInvalidCode, raw["kind"])
	assert.Equal(t, float64(0), raw["attemptsRemaining"])
	assert.NotContains(t, raw, "attempts_remaining")
}

// --- Resend ---

func TestResendOTP(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Resend", mock.Anything, domain.ResendOTPRequest{Email: "a@x.com"}).
		Return(&auth.ResendResult{Email: "a@x.com", Method: notification.MethodEmail}, nil)

	rr := post(t, NewAuthHandler(svc).ResendOTP, domain.ResendOTPRequest{Email: "a@x.com"})
	assert.Equal(t, http.StatusOK, rr.Code)
	var env ResendEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	assert.Equal(t, "New OTP sent to your email", env.Message)
}

// --- Login ---

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Login", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("login: %w", domain.ErrInvalidCredentials))

	rr := post(t, NewAuthHandler(svc).Login, domain.LoginRequest{Email: "a@x.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid credentials", decodeError(t, rr).Error)
}

func TestLogin_Success(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Login", mock.Anything, mock.Anything).Return(&auth.AuthResult{Token: "tok", Account: verifiedAccount}, nil)

	rr := post(t, NewAuthHandler(svc).Login, domain.LoginRequest{Email: "a@x.com", Password: "secret123"})
	assert.Equal(t, http.StatusOK, rr.Code)
	var env AuthEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	assert.Equal(t, "Login successful", env.Message)
	assert.Equal(t, "01HZACCOUNT", env.User.ID)
}

// --- Me / Logout ---

func TestMe(t *testing.T) {
	claims := &jwtinfra.Claims{Email: "a@x.com", RegisteredClaims: jwt.RegisteredClaims{Subject: "01HZACCOUNT"}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.ClaimsKey, claims))
	rr := httptest.NewRecorder()
	NewAuthHandler(&mockAuthSvc{}).Me(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var env UserEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	assert.Equal(t, PublicUser{ID: "01HZACCOUNT", Email: "a@x.com"}, env.User)
}

func TestMe_NoClaims(t *testing.T) {
	rr := httptest.NewRecorder()
	NewAuthHandler(&mockAuthSvc{}).Me(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogout(t *testing.T) {
	rr := httptest.NewRecorder()
	NewAuthHandler(&mockAuthSvc{}).Logout(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

// --- Health ---

func TestHealth(t *testing.T) {
	h := NewHealthHandler(Banner{Name: "otp-auth", Version: "1.0.0", Env: "test"}, &mockChecker{})

	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.Root(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"name":"otp-auth","version":"1.0.0","env":"test"}`, rr.Body.String())
}

func TestTestEmail(t *testing.T) {
	checker := &mockChecker{}
	checker.On("Check", mock.Anything).Return(notification.Health{Channel: "email", Ready: false, Error: "dial tcp: refused"}).Once()
	checker.On("Check", mock.Anything).Return(notification.Health{Channel: "email", Ready: true}).Once()
	h := NewHealthHandler(Banner{}, checker)

	rr := httptest.NewRecorder()
	h.TestEmail(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	h.TestEmail(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"channel":"email","ready":true}`, rr.Body.String())
}
