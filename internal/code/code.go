// Package code generates the short join codes printed on fridge cards and
// read out over the phone.
package code

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// Alphabet excludes characters that read ambiguously in handwriting or
	// speech: 0/O, 1/I/L.
	Alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	// Length of every generated code.
	Length = 6
)

// Generate draws a Length-character code from Alphabet using crypto/rand.
// Uniqueness is the caller's concern: insert under a UNIQUE constraint and
// regenerate on collision, so the check-then-insert race stays closed.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(Length)
	max := big.NewInt(int64(len(Alphabet)))
	for i := 0; i < Length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Valid reports whether s is a well-formed code.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(Alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// Normalize prepares hand-typed input for lookup.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
