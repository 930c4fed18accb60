// Package tickets builds, parses and renders the QR payload printed on a
// registration ticket.
package tickets

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
)

// codeBytes of entropy encode to exactly CodeLength base32 characters.
const (
	codeBytes  = 20
	CodeLength = 32
)

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewCode returns a fresh random check-in code (160 bits, A-Z and 2-7).
func NewCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return codeEncoding.EncodeToString(b), nil
}
