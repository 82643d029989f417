package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const opaqueBytes = 32

// NewOpaque generates an unguessable 64-character hex bearer token.
func NewOpaque() (string, error) {
	b := make([]byte, opaqueBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate opaque token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
