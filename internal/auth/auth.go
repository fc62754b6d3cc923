// Package auth signs the terminal bridge WebSocket handshake with RSA-PSS.
//
// The bridge verifies three headers: the key ID, a millisecond timestamp and a
// base64 signature over timestamp + "GET" + request path.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Handshake header names.
const (
	HeaderKey       = "X-Bridge-Key"
	HeaderTimestamp = "X-Bridge-Timestamp"
	HeaderSignature = "X-Bridge-Signature"
)

// ErrBadSignature is returned by Verify for a signature that does not match.
var ErrBadSignature = errors.New("bridge signature mismatch")

// Signer holds the key used to sign bridge handshakes.
type Signer struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey

	now func() time.Time
}

// LoadSigner loads a signer from a key ID and a private key file path.
func LoadSigner(keyID, privateKeyPath string) (*Signer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("bridge key ID is required")
	}
	if privateKeyPath == "" {
		return nil, fmt.Errorf("private key path is required")
	}

	privateKey, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return &Signer{KeyID: keyID, PrivateKey: privateKey}, nil
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	// PKCS#8 first, then PKCS#1.
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return rsaKey, nil
}

// SignHandshake returns the headers for a WebSocket upgrade to path.
func (s *Signer) SignHandshake(path string) (http.Header, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	timestampMs := now().UnixMilli()

	signature, err := s.sign(timestampMs, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set(HeaderKey, s.KeyID)
	h.Set(HeaderTimestamp, strconv.FormatInt(timestampMs, 10))
	h.Set(HeaderSignature, signature)
	return h, nil
}

// sign creates an RSA-PSS signature over timestamp_ms + method + path.
func (s *Signer) sign(timestampMs int64, method, path string) (string, error) {
	hashed := digest(timestampMs, method, path)

	signature, err := rsa.SignPSS(
		rand.Reader,
		s.PrivateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

// Verify checks handshake headers against a public key. Bridges and tests
// use it on the server side of the upgrade.
func Verify(pub *rsa.PublicKey, h http.Header, path string) error {
	ts, err := strconv.ParseInt(h.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("parse timestamp header: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(h.Get(HeaderSignature))
	if err != nil {
		return fmt.Errorf("decode signature header: %w", err)
	}

	hashed := digest(ts, http.MethodGet, path)
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}
	if err := rsa.VerifyPSS(pub, crypto.SHA256, hashed[:], sig, opts); err != nil {
		return ErrBadSignature
	}
	return nil
}

func digest(timestampMs int64, method, path string) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%d%s%s", timestampMs, method, path)))
}
