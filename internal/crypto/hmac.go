package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// HMACAuth holds Polymarket CLOB L2 API credentials.
type HMACAuth struct {
	Key        string
	Secret     string // URL-safe base64
	Passphrase string
}

// Valid reports whether every credential is present.
func (h HMACAuth) Valid() bool {
	return h.Key != "" && h.Secret != "" && h.Passphrase != ""
}

// Apply sets the L2 headers on req. The signature is
// HMAC-SHA256(secret, timestamp+method+path+body), URL-safe base64.
func (h HMACAuth) Apply(req *http.Request, address, path, body string, now time.Time) error {
	secret, err := base64.URLEncoding.DecodeString(h.Secret)
	if err != nil {
		if secret, err = base64.StdEncoding.DecodeString(h.Secret); err != nil {
			return fmt.Errorf("crypto/hmac: secret is not base64: %w", err)
		}
	}
	ts := strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + req.Method + path + body))

	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_API_KEY", h.Key)
	req.Header.Set("POLY_PASSPHRASE", h.Passphrase)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_SIGNATURE", base64.URLEncoding.EncodeToString(mac.Sum(nil)))
	return nil
}

// String redacts the credentials.
func (h HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
