// Package security issues and validates the participant access tokens the room gateway and the
// meeting API accept.
package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed, expired, or signed for someone else.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller carried by an access token.
type Identity struct {
	UserID      string
	DisplayName string
}

// AccessClaims holds JWT claims for a participant access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
}

// TokenProvider issues and validates access JWTs signed with RS256, ES256 or EdDSA.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	method     jwt.SigningMethod
	issuer     string
	audience   string
	accessTTL  time.Duration
}

// NewTokenProvider returns a TokenProvider. privateKey may be nil for a validate-only provider
// (e.g. a gateway that never issues tokens).
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) (*TokenProvider, error) {
	if publicKey == nil && privateKey != nil {
		publicKey = privateKey.Public()
	}
	method := signingMethod(publicKey)
	if method == nil {
		return nil, ErrInvalidKey
	}
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		method:     method,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
	}, nil
}

func signingMethod(pub crypto.PublicKey) jwt.SigningMethod {
	switch pub.(type) {
	case *rsa.PublicKey:
		return jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		return jwt.SigningMethodES256
	case ed25519.PublicKey:
		return jwt.SigningMethodEdDSA
	default:
		return nil
	}
}

// IssueAccess issues an access JWT for userID carrying displayName.
func (p *TokenProvider) IssueAccess(userID, displayName string) (token string, expiresAt time.Time, err error) {
	if p.privateKey == nil {
		return "", time.Time{}, ErrInvalidKey
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Name: displayName,
	}
	token, err = jwt.NewWithClaims(p.method, claims).SignedString(p.privateKey)
	return token, expiresAt, err
}

// ValidateAccess checks signature, expiry, issuer and audience and returns the caller.
func (p *TokenProvider) ValidateAccess(tokenString string) (Identity, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), claims,
		func(*jwt.Token) (interface{}, error) { return p.publicKey, nil },
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.Subject, DisplayName: claims.Name}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
