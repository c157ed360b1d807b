// Package otp generates the short numeric codes used for email
// verification and password resets.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeLength is the fixed length of every generated code.
const CodeLength = 6

const (
	codeMin = 100000
	codeMax = 999999
)

// GenerateCode produces a 6-digit numeric code from a cryptographic
// random source. Codes gate account takeover, so predictable sources
// are not acceptable here.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}
