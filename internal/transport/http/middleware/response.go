package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/go-otp-auth/internal/domain"
)

// writeUnauthorized writes a 401 in the same shape the handlers use for errors.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": domain.KindUnauthorized})
}
