package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-otp-auth/internal/domain"
)

var publicMessages = map[string]string{
	domain.KindDuplicateAccount:   "User already exists",
	domain.KindNotFound:           "No pending verification found. Please sign up.",
	domain.KindExpired:            "OTP expired. Please request a new one.",
	domain.KindInvalidCode:        "Invalid OTP",
	domain.KindTooManyAttempts:    "Too many failed attempts. Please request a new OTP.",
	domain.KindAlreadyVerified:    "User already verified. Please log in.",
	domain.KindInvalidCredentials: "Invalid credentials",
	domain.KindUnauthorized:       "Unauthorized",
	domain.KindDependencyTimeout:  "Service temporarily unavailable, please retry",
	domain.KindInternal:           "Internal server error",
}

// writeServiceError maps a service error to its status and public body.
// Dependency failures are logged here and never echoed to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	body := ErrorEnvelope{Kind: kind, Error: publicMessages[kind]}

	var status int
	switch kind {
	case domain.KindInvalidCredentials, domain.KindUnauthorized:
		status = http.StatusUnauthorized
	case domain.KindDependencyTimeout, domain.KindInternal:
		status = http.StatusInternalServerError
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "kind", kind, "err", err)
	case domain.KindInvalidInput:
		status = http.StatusBadRequest
		body.Error = strings.TrimPrefix(err.Error(), domain.ErrBadRequest.Error()+": ")
	default:
		status = http.StatusBadRequest
	}

	var ae *domain.AttemptError
	if errors.As(err, &ae) {
		remaining := ae.Remaining
		body.AttemptsRemaining = &remaining
		body.Error = fmt.Sprintf("Invalid OTP. %d attempts remaining", remaining)
	}
	writeJSON(w, status, body)
}

func writeBadBody(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, ErrorEnvelope{Error: "invalid request body", Kind: domain.KindInvalidInput})
}
