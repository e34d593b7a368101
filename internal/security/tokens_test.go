package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func TestTokenProvider_IssueAndValidate(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatal(err)
	}
	tok, exp, err := p.IssueAccess("user-1", "Alice")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Error("expiry should be in the future")
	}
	id, err := p.ValidateAccess(tok)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if id.UserID != "user-1" || id.DisplayName != "Alice" {
		t.Errorf("identity = %+v", id)
	}
}

func TestTokenProvider_Rejects(t *testing.T) {
	p, _ := NewTestTokenProvider()
	other, _ := NewTestTokenProvider()
	foreign, _, _ := other.IssueAccess("user-1", "Alice")

	key, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	wrongAud, _ := NewTokenProvider(key, nil, TestIssuer, "someone-else", time.Minute)
	wrongAudTok, _, _ := wrongAud.IssueAccess("user-1", "Alice")
	sameKeyRightAud, _ := NewTokenProvider(key, nil, TestIssuer, TestAudience, time.Minute)

	expired, _ := NewTokenProvider(key, nil, TestIssuer, TestAudience, -time.Minute)
	expiredTok, _, _ := expired.IssueAccess("user-1", "Alice")

	tests := []struct {
		name string
		p    *TokenProvider
		tok  string
	}{
		{"garbage", p, "not-a-jwt"},
		{"empty", p, ""},
		{"other key", p, foreign},
		{"wrong audience", sameKeyRightAud, wrongAudTok},
		{"expired", sameKeyRightAud, expiredTok},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.p.ValidateAccess(tt.tok); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestTokenProvider_ValidateOnly(t *testing.T) {
	key, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	issuer, _ := NewTokenProvider(key, nil, TestIssuer, TestAudience, time.Minute)
	verifier, err := NewTokenProvider(nil, key.Public(), TestIssuer, TestAudience, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := verifier.IssueAccess("u", "U"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("validate-only issue: %v", err)
	}
	tok, _, _ := issuer.IssueAccess("u", "U")
	if _, err := verifier.ValidateAccess(tok); err != nil {
		t.Errorf("ValidateAccess: %v", err)
	}
}

func TestNewTokenProvider_NoKey(t *testing.T) {
	if _, err := NewTokenProvider(nil, nil, "i", "a", time.Minute); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("err = %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v", tt.in, got, ok)
		}
	}
}
