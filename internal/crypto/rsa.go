package crypto

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
	"strconv"
	"time"
)

// RSASigner signs Kalshi API requests with RSA-PSS over SHA-256.
type RSASigner struct {
	keyID string
	key   *rsa.PrivateKey
}

// NewRSASigner parses a PKCS#8 or PKCS#1 PEM key.
func NewRSASigner(keyID string, pemBytes []byte) (*RSASigner, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("crypto/rsa: no PEM block found")
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &RSASigner{keyID: keyID, key: k}, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("crypto/rsa: parse private key: %w", err)
	}
	k, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("crypto/rsa: expected RSA key, got %T", parsed)
	}
	return &RSASigner{keyID: keyID, key: k}, nil
}

// Headers returns the access headers for a request on path (without query)
// at now. The signed message is timestampMillis + method + path.
func (s *RSASigner) Headers(method, path string, now time.Time) (http.Header, error) {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	digest := sha256.Sum256([]byte(ts + method + path))
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return nil, fmt.Errorf("crypto/rsa: sign: %w", err)
	}
	h := http.Header{}
	h.Set("KALSHI-ACCESS-KEY", s.keyID)
	h.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	h.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(sig))
	return h, nil
}

// Verify checks a signature produced by Headers. Used by tests and tooling.
func (s *RSASigner) Verify(method, path string, h http.Header) error {
	sig, err := base64.StdEncoding.DecodeString(h.Get("KALSHI-ACCESS-SIGNATURE"))
	if err != nil {
		return fmt.Errorf("crypto/rsa: decode signature: %w", err)
	}
	digest := sha256.Sum256([]byte(h.Get("KALSHI-ACCESS-TIMESTAMP") + method + path))
	return rsa.VerifyPSS(&s.key.PublicKey, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
}
