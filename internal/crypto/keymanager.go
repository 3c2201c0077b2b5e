// Package crypto holds venue credentials: encrypted key files, EIP-712 order
// signing for the Polymarket CLOB, HMAC request auth and Kalshi RSA-PSS
// request signing.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	fileVersion      = 2
)

// SecretKind labels what an encrypted key file holds.
type SecretKind string

const (
	KindWallet    SecretKind = "wallet"     // hex secp256k1 key
	KindKalshiRSA SecretKind = "kalshi_rsa" // PEM RSA key
)

// sealedFile is the on-disk format.
type sealedFile struct {
	Version    int        `json:"version"`
	Kind       SecretKind `json:"kind"`
	Salt       string     `json:"salt"`
	Nonce      string     `json:"nonce"`
	Ciphertext string     `json:"ciphertext"`
}

// Seal encrypts a secret with PBKDF2-HMAC-SHA256 and AES-256-GCM and returns
// the JSON file contents. The kind is bound as additional data.
func Seal(kind SecretKind, secret []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if len(secret) == 0 {
		return nil, errors.New("crypto: empty secret")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}
	return json.MarshalIndent(sealedFile{
		Version:    fileVersion,
		Kind:       kind,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, secret, []byte(kind))),
	}, "", "  ")
}

// Open decrypts a file produced by Seal and checks it holds the wanted kind.
func Open(data []byte, want SecretKind, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	var f sealedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("crypto: parsing key file: %w", err)
	}
	if f.Version != fileVersion {
		return nil, fmt.Errorf("crypto: unsupported key file version %d", f.Version)
	}
	if f.Kind != want {
		return nil, fmt.Errorf("crypto: key file holds %q, want %q", f.Kind, want)
	}
	var parts [3][]byte
	for i, s := range []string{f.Salt, f.Nonce, f.Ciphertext} {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("crypto: decoding key file: %w", err)
		}
		parts[i] = b
	}
	gcm, err := newGCM(password, parts[0])
	if err != nil {
		return nil, err
	}
	if len(parts[1]) != gcm.NonceSize() {
		return nil, errors.New("crypto: bad nonce length")
	}
	plain, err := gcm.Open(nil, parts[1], parts[2], []byte(f.Kind))
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return plain, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

// EncryptWalletKey validates a hex secp256k1 key and seals it.
func EncryptWalletKey(privateKeyHex, password string) ([]byte, error) {
	raw, err := decodeWalletHex(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return Seal(KindWallet, raw, password)
}

func decodeWalletHex(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("crypto: expected 32-byte key, got %d bytes", len(raw))
	}
	return raw, nil
}

// KeySource says where a secret comes from. Inline wins over the file.
type KeySource struct {
	Inline   string
	File     string
	Password string
}

// Configured reports whether any source is set.
func (s KeySource) Configured() bool { return s.Inline != "" || s.File != "" }

// LoadWalletKey resolves a hex wallet key (without 0x).
func LoadWalletKey(src KeySource) (string, error) {
	if src.Inline != "" {
		raw, err := decodeWalletHex(src.Inline)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(raw), nil
	}
	raw, err := loadFile(src, KindWallet)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// LoadKalshiPEM resolves a PEM-encoded RSA key. A file that is already PEM
// is returned as is; otherwise it must be a sealed key file.
func LoadKalshiPEM(src KeySource) ([]byte, error) {
	if src.Inline != "" {
		return []byte(src.Inline), nil
	}
	if src.File == "" {
		return nil, errors.New("crypto: no kalshi key configured")
	}
	data, err := os.ReadFile(src.File)
	if err != nil {
		return nil, fmt.Errorf("crypto: reading key file: %w", err)
	}
	if strings.HasPrefix(strings.TrimSpace(string(data)), "-----BEGIN") {
		return data, nil
	}
	return Open(data, KindKalshiRSA, src.Password)
}

func loadFile(src KeySource, kind SecretKind) ([]byte, error) {
	if src.File == "" {
		return nil, fmt.Errorf("crypto: no %s key configured", kind)
	}
	data, err := os.ReadFile(src.File)
	if err != nil {
		return nil, fmt.Errorf("crypto: reading key file: %w", err)
	}
	return Open(data, kind, src.Password)
}
