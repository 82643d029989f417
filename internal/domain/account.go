package domain

import (
	"strings"
	"time"
)

// Account is a registered identity keyed by its normalized email.
// A pending account carries exactly one Challenge; a verified one carries none.
type Account struct {
	AccountID    string     `json:"id" dynamodbav:"account_id"`
	Email        string     `json:"email" dynamodbav:"email"`
	PasswordHash string     `json:"-" dynamodbav:"password_hash"`
	Verified     bool       `json:"verified" dynamodbav:"verified"`
	Challenge    *Challenge `json:"-" dynamodbav:"challenge,omitempty"`
	CreatedAt    time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time  `json:"updated" dynamodbav:"updated_at"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty" dynamodbav:"verified_at,omitempty"`
	// PurgeAt is a unix timestamp after which a never-verified account may be
	// dropped by the store. Zero keeps the account forever.
	PurgeAt int64 `json:"-" dynamodbav:"purge_at,omitempty"`
}

// Challenge is the outstanding one-time code of a pending account.
// Only the hash of the code is ever stored.
type Challenge struct {
	CodeHash          string    `dynamodbav:"code_hash"`
	IssuedAt          time.Time `dynamodbav:"issued_at,unixtime"`
	ExpiresAt         time.Time `dynamodbav:"expires_at,unixtime"`
	AttemptsRemaining int       `dynamodbav:"attempts_remaining"`
}

// Expired reports whether the challenge window has passed at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Exhausted reports whether no verification attempts are left.
func (c *Challenge) Exhausted() bool {
	return c.AttemptsRemaining <= 0
}

// OTPPolicy bounds every challenge the service issues.
type OTPPolicy struct {
	Length      int
	Window      time.Duration
	MaxAttempts int
}

// NormalizeEmail lowercases and trims an email address.
// All store keys and comparisons use the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RejectReason explains why a guarded write carrying codeHash at now would be
// refused for a, or returns nil when the write would be accepted. Stores call
// it after a conditional write fails to tell the competing outcomes apart.
// An empty codeHash skips the hash comparison; a zero now skips expiry.
func RejectReason(a *Account, codeHash string, now time.Time) error {
	switch {
	case a == nil:
		return ErrNotFound
	case a.Verified:
		return ErrAlreadyVerified
	case a.Challenge == nil:
		return ErrNotFound
	case codeHash != "" && a.Challenge.CodeHash != codeHash:
		return ErrInvalidCode
	case !now.IsZero() && a.Challenge.Expired(now):
		return ErrExpired
	case a.Challenge.Exhausted():
		return ErrTooManyAttempts
	}
	return nil
}
