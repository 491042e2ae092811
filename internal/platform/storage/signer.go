package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Signer signs URL payloads on behalf of a service account.
type Signer interface {
	// Email is the account used as GoogleAccessID in signed URLs.
	Email() string
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

// KeyfileSigner signs with the RSA key from a service account JSON keyfile.
type KeyfileSigner struct {
	email string
	key   *rsa.PrivateKey
}

// NewKeyfileSigner parses a service account JSON key.
func NewKeyfileSigner(jsonKey []byte) (*KeyfileSigner, error) {
	if len(jsonKey) == 0 {
		return nil, errors.New("storage: service account key is empty")
	}

	var keyfile struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(jsonKey, &keyfile); err != nil {
		return nil, fmt.Errorf("storage: decode service account key: %w", err)
	}

	email := strings.TrimSpace(keyfile.ClientEmail)
	if email == "" {
		return nil, errors.New("storage: service account key has no client_email")
	}
	pemKey := strings.TrimSpace(keyfile.PrivateKey)
	if pemKey == "" {
		return nil, errors.New("storage: service account key has no private_key")
	}

	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, errors.New("storage: private_key is not valid PEM")
	}
	rsaKey, err := rsaKeyFromDER(block.Bytes)
	if err != nil {
		return nil, err
	}
	return &KeyfileSigner{email: email, key: rsaKey}, nil
}

// LoadKeyfileSigner reads a service account JSON key from disk.
func LoadKeyfileSigner(path string) (*KeyfileSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read service account key: %w", err)
	}
	return NewKeyfileSigner(data)
}

func (s *KeyfileSigner) Email() string {
	if s == nil {
		return ""
	}
	return s.email
}

// SignBytes applies RSA PKCS#1 v1.5 over SHA-256 of the payload, the
// scheme Cloud Storage V4 signing expects.
func (s *KeyfileSigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("storage: signer not initialised")
	}
	if len(payload) == 0 {
		return nil, errors.New("storage: payload is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digest := sha256.Sum256(payload)
	signature, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("storage: sign payload: %w", err)
	}
	return signature, nil
}

// rsaKeyFromDER accepts PKCS#8 (current GCP keyfiles) or PKCS#1 (legacy).
func rsaKeyFromDER(der []byte) (*rsa.PrivateKey, error) {
	if parsed, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("storage: private_key is not an RSA key")
		}
		return rsaKey, nil
	}
	rsaKey, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("storage: parse private_key: %w", err)
	}
	return rsaKey, nil
}
