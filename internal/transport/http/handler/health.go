package handler

import (
	"context"
	"net/http"

	"github.com/go-otp-auth/internal/application/notification"
)

// DeliveryChecker probes the notification channel.
type DeliveryChecker interface {
	Check(ctx context.Context) notification.Health
}

// Banner identifies the running service on the root route.
type Banner struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Env     string `json:"env"`
}

// HealthHandler handles health-check and diagnostic endpoints.
type HealthHandler struct {
	banner   Banner
	delivery DeliveryChecker
}

func NewHealthHandler(banner Banner, delivery DeliveryChecker) *HealthHandler {
	return &HealthHandler{banner: banner, delivery: delivery}
}

func (h *HealthHandler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.banner)
}

func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// TestEmail reports whether the delivery channel is reachable without sending anything.
func (h *HealthHandler) TestEmail(w http.ResponseWriter, r *http.Request) {
	hc := h.delivery.Check(r.Context())
	status := http.StatusOK
	if !hc.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, hc)
}
