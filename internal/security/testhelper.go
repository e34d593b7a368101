package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"time"
)

// Test issuer and audience used by NewTestTokenProvider.
const (
	TestIssuer   = "emeet-test"
	TestAudience = "emeet-test-api"
)

// NewTestTokenProvider returns a TokenProvider over a fresh ES256 key. For tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(key, nil, TestIssuer, TestAudience, 15*time.Minute)
}
