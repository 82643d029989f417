// Package hash provides the slow salted hash used for passwords and OTP codes.
package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Purposes keep password hashes and OTP hashes in separate domains.
const (
	PurposePassword = "password"
	PurposeOTP      = "otp"
)

// Bcrypt hashes HMAC-SHA256(pepper, purpose|plaintext) with bcrypt. The
// pre-hash keeps inputs under bcrypt's 72-byte limit and makes a hash produced
// for one purpose useless for another.
type Bcrypt struct {
	cost int
	key  []byte
}

// NewBcrypt returns a hasher. Costs outside bcrypt's range fall back to the default.
func NewBcrypt(cost int, pepper, purpose string) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost, key: []byte(purpose + "|" + pepper)}
}

func (h *Bcrypt) prehash(plaintext string) []byte {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(plaintext))
	return []byte(hex.EncodeToString(mac.Sum(nil)))
}

// Hash returns a salted bcrypt hash of plaintext. It panics on empty input.
func (h *Bcrypt) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		panic("hash: empty plaintext")
	}
	b, err := bcrypt.GenerateFromPassword(h.prehash(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

// Verify reports whether plaintext matches hashed. A missing hash never matches.
func (h *Bcrypt) Verify(plaintext, hashed string) bool {
	if hashed == "" || plaintext == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), h.prehash(plaintext)) == nil
}
