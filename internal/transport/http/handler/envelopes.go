package handler

import (
	"encoding/json"
	"net/http"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
}

// ErrorEnvelope carries a failed request's public message and machine-readable kind.
type ErrorEnvelope struct {
	Error             string `json:"error"`
	Kind              string `json:"kind"`
	AttemptsRemaining *int   `json:"attemptsRemaining,omitempty"`
}

// PublicUser is the only view of an account that leaves the service.
type PublicUser struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
}

// SignupEnvelope wraps signup responses.
type SignupEnvelope struct {
	Message         string `json:"message"`
	Email           string `json:"email"`
	PendingDelivery bool   `json:"pendingDelivery"`
	Method          string `json:"method"`
}

// ResendEnvelope wraps resend responses.
type ResendEnvelope struct {
	Message         string `json:"message"`
	PendingDelivery bool   `json:"pendingDelivery"`
	Method          string `json:"method"`
}

// AuthEnvelope wraps verify and login responses.
type AuthEnvelope struct {
	Message string     `json:"message"`
	Token   string     `json:"token"`
	User    PublicUser `json:"user"`
}

// UserEnvelope wraps the current-user response.
type UserEnvelope struct {
	User PublicUser `json:"user"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
