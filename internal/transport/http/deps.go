package http

import (
	"net/http"

	"github.com/go-otp-auth/internal/application/auth"
	"github.com/go-otp-auth/internal/transport/http/handler"
	appmiddleware "github.com/go-otp-auth/internal/transport/http/middleware"
)

// Deps holds the application services the router exposes.
type Deps struct {
	AuthService auth.Service
	Delivery    handler.DeliveryChecker
	// TokenVerifier is nil when sessions are opaque; /me is then not mounted.
	TokenVerifier appmiddleware.TokenVerifier
	// Metrics serves the scrape endpoint when set.
	Metrics http.Handler
}
