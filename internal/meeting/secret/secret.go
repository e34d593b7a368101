// Package secret generates and checks room passwords.
package secret

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strings"
)

const (
	// Length is the number of characters in a generated secret.
	Length = 12

	Letters     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Digits      = "0123456789"
	Punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

var alphabet = Letters + Digits + Punctuation

// Generate returns a Length-character secret with at least one letter, one digit and one
// punctuation character. Uses crypto/rand for every draw, including the shuffle.
func Generate() (string, error) {
	out := make([]byte, 0, Length)
	for _, set := range []string{Letters, Digits, Punctuation} {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < Length {
		c, err := pick(alphabet)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}

// Equal reports whether provided matches stored exactly, in constant time.
func Equal(provided, stored string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(stored)) == 1
}

// WellFormed reports whether s has the shape produced by Generate.
func WellFormed(s string) bool {
	if len(s) != Length {
		return false
	}
	return strings.ContainsAny(s, Letters) && strings.ContainsAny(s, Digits) && strings.ContainsAny(s, Punctuation) &&
		strings.Trim(s, alphabet) == ""
}
