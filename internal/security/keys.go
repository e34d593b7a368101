package security

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"
)

// ErrInvalidKey is returned when PEM or key type is invalid.
var ErrInvalidKey = errors.New("invalid key")

// LoadPEM returns s when it is inline PEM, otherwise reads the file at path s. Inline PEM
// coming from a .env file may carry literal "\n" sequences; those are expanded.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded RSA, ECDSA or Ed25519 private key (inline or file path).
func ParsePrivateKey(s string) (crypto.Signer, error) {
	block, err := decode(s)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	default:
		return nil, ErrInvalidKey
	}
}

// ParsePublicKey parses a PEM-encoded public key (inline or file path).
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	block, err := decode(s)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// LoadKeyPair parses the configured signing keys. Either may be empty: a missing public key is
// derived from the private key, a missing private key yields a validate-only pair.
func LoadKeyPair(privateSpec, publicSpec string) (crypto.Signer, crypto.PublicKey, error) {
	var (
		priv crypto.Signer
		pub  crypto.PublicKey
		err  error
	)
	if strings.TrimSpace(privateSpec) != "" {
		if priv, err = ParsePrivateKey(privateSpec); err != nil {
			return nil, nil, err
		}
	}
	if strings.TrimSpace(publicSpec) != "" {
		if pub, err = ParsePublicKey(publicSpec); err != nil {
			return nil, nil, err
		}
	}
	if pub == nil && priv != nil {
		pub = priv.Public()
	}
	if pub == nil {
		return nil, nil, ErrInvalidKey
	}
	return priv, pub, nil
}

// KeyAlg returns the JWT algorithm used for pub; empty when unsupported.
func KeyAlg(pub crypto.PublicKey) string {
	if m := signingMethod(pub); m != nil {
		return m.Alg()
	}
	return ""
}

func decode(s string) (*pem.Block, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	return block, nil
}

// EncodePrivateKey returns key as a PKCS#8 PEM block.
func EncodePrivateKey(key crypto.Signer) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}
