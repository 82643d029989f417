// Package session issues bearer credentials for verified accounts.
package session

import (
	"context"
	"fmt"

	"github.com/go-otp-auth/internal/domain"
	jwtinfra "github.com/go-otp-auth/internal/infrastructure/jwt"
	"github.com/go-otp-auth/internal/pkg/token"
)

// Issuer mints a credential for a verified identity.
type Issuer interface {
	Issue(ctx context.Context, a *domain.Account) (string, error)
	Kind() string
}

// NewIssuer returns a JWT issuer when p is set and an opaque-token issuer otherwise.
func NewIssuer(p *jwtinfra.Provider) Issuer {
	if p == nil {
		return OpaqueIssuer{}
	}
	return &JWTIssuer{provider: p}
}

// JWTIssuer signs RS256 tokens whose subject is the account ID.
type JWTIssuer struct {
	provider *jwtinfra.Provider
}

func (i *JWTIssuer) Issue(_ context.Context, a *domain.Account) (string, error) {
	if a == nil || !a.Verified {
		return "", fmt.Errorf("issue token: account not verified: %w", domain.ErrUnauthorized)
	}
	tok, err := i.provider.Sign(a.AccountID, a.Email)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tok, nil
}

func (*JWTIssuer) Kind() string { return "jwt" }

// OpaqueIssuer hands out random tokens with no server-side record; they
// identify nothing and exist so clients always get a credential.
type OpaqueIssuer struct{}

func (OpaqueIssuer) Issue(_ context.Context, a *domain.Account) (string, error) {
	if a == nil || !a.Verified {
		return "", fmt.Errorf("issue token: account not verified: %w", domain.ErrUnauthorized)
	}
	return token.NewOpaque()
}

func (OpaqueIssuer) Kind() string { return "opaque" }
