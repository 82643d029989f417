package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-otp-auth/internal/application/auth"
	"github.com/go-otp-auth/internal/domain"
	"github.com/go-otp-auth/internal/transport/http/middleware"
)

// AuthHandler serves the signup, verification and login endpoints.
type AuthHandler struct{ svc auth.Service }

func NewAuthHandler(svc auth.Service) *AuthHandler { return &AuthHandler{svc: svc} }

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadBody(w)
		return
	}
	res, err := h.svc.Signup(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status, msg := http.StatusOK, "Signup successful. OTP sent to your email."
	if res.PendingDelivery {
		status = http.StatusAccepted
		msg = "Signup successful. OTP delivery is pending; check your inbox shortly or request a new code."
	}
	writeJSON(w, status, SignupEnvelope{
		Message:         msg,
		Email:           res.Email,
		PendingDelivery: res.PendingDelivery,
		Method:          res.Method,
	})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadBody(w)
		return
	}
	res, err := h.svc.Verify(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{
		Message: "Email verified successfully",
		Token:   res.Token,
		User:    PublicUser{ID: res.Account.AccountID, Email: res.Account.Email},
	})
}

func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.ResendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadBody(w)
		return
	}
	res, err := h.svc.Resend(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	msg := "New OTP sent to your email"
	if res.PendingDelivery {
		msg = "New OTP generated; delivery is pending"
	}
	writeJSON(w, http.StatusOK, ResendEnvelope{Message: msg, PendingDelivery: res.PendingDelivery, Method: res.Method})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadBody(w)
		return
	}
	res, err := h.svc.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{
		Message: "Login successful",
		Token:   res.Token,
		User:    PublicUser{ID: res.Account.AccountID, Email: res.Account.Email},
	})
}

// Logout has no server-side state to drop; clients discard their token.
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Logged out successfully"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeServiceError(w, r, domain.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{User: PublicUser{ID: claims.Subject, Email: claims.Email}})
}
