package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWalletKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var testExchange = common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")

func TestSealOpenRoundTrip(t *testing.T) {
	sealed, err := EncryptWalletKey("0x"+testWalletKey, "hunter2")
	require.NoError(t, err)

	plain, err := Open(sealed, KindWallet, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testWalletKey, hex.EncodeToString(plain))

	_, err = Open(sealed, KindWallet, "wrong")
	assert.ErrorContains(t, err, "decryption failed")

	_, err = Open(sealed, KindKalshiRSA, "hunter2")
	assert.ErrorContains(t, err, "holds")
}

func TestEncryptRejectsBadInput(t *testing.T) {
	_, err := EncryptWalletKey(testWalletKey, "")
	assert.Error(t, err)
	_, err = EncryptWalletKey("zz", "pw")
	assert.Error(t, err)
	_, err = EncryptWalletKey("abcd", "pw")
	assert.ErrorContains(t, err, "32-byte")
}

func TestLoadWalletKey(t *testing.T) {
	k, err := LoadWalletKey(KeySource{Inline: "0x" + testWalletKey})
	require.NoError(t, err)
	assert.Equal(t, testWalletKey, k)

	sealed, err := EncryptWalletKey(testWalletKey, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	k, err = LoadWalletKey(KeySource{File: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testWalletKey, k)

	_, err = LoadWalletKey(KeySource{})
	assert.Error(t, err)
}

func TestSignerAddressAndOrderRecovery(t *testing.T) {
	s, err := NewSigner(testWalletKey, 137, testExchange)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), s.Address())

	order := OrderPayload{
		Salt:        "12345",
		Maker:       s.Address().Hex(),
		Signer:      s.Address().Hex(),
		Taker:       "0x0000000000000000000000000000000000000000",
		TokenID:     "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		MakerAmount: "5200000",
		TakerAmount: "10000000",
		Expiration:  "0",
		Nonce:       "0",
		FeeRateBps:  "0",
		Side:        SideBuy,
	}
	sigHex, err := s.SignOrder(order)
	require.NoError(t, err)

	sig, err := hex.DecodeString(sigHex[2:])
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	structHash, err := orderStructHash(order)
	require.NoError(t, err)
	sig[64] -= 27
	pub, err := ethcrypto.SigToPub(eip712Digest(s.orderDomain, structHash), sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), ethcrypto.PubkeyToAddress(*pub))

	order.MakerAmount = "-1"
	_, err = s.SignOrder(order)
	assert.Error(t, err)
}

func TestSignAuthDiffersByTimestamp(t *testing.T) {
	s, err := NewSigner(testWalletKey, 137, testExchange)
	require.NoError(t, err)
	a, err := s.SignAuth("1700000000", 0)
	require.NoError(t, err)
	b, err := s.SignAuth("1700000001", 0)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHMACApply(t *testing.T) {
	secret := base64.URLEncoding.EncodeToString([]byte("super-secret"))
	auth := HMACAuth{Key: "key", Secret: secret, Passphrase: "pass"}
	require.True(t, auth.Valid())

	req, err := http.NewRequest(http.MethodPost, "https://clob.example/order", nil)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	require.NoError(t, auth.Apply(req, "0xabc", "/order", `{"a":1}`, now))

	mac := hmac.New(sha256.New, []byte("super-secret"))
	mac.Write([]byte("1700000000" + "POST" + "/order" + `{"a":1}`))
	assert.Equal(t, base64.URLEncoding.EncodeToString(mac.Sum(nil)), req.Header.Get("POLY_SIGNATURE"))
	assert.Equal(t, "1700000000", req.Header.Get("POLY_TIMESTAMP"))
	assert.Equal(t, "0xabc", req.Header.Get("POLY_ADDRESS"))
	assert.NotContains(t, auth.String(), "super")
}

func TestRSASignerHeaders(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	s, err := NewRSASigner("key-id", pemBytes)
	require.NoError(t, err)
	now := time.UnixMilli(1_700_000_000_123)
	h, err := s.Headers(http.MethodPost, "/trade-api/v2/portfolio/orders", now)
	require.NoError(t, err)

	assert.Equal(t, "key-id", h.Get("KALSHI-ACCESS-KEY"))
	assert.Equal(t, "1700000000123", h.Get("KALSHI-ACCESS-TIMESTAMP"))
	assert.NoError(t, s.Verify(http.MethodPost, "/trade-api/v2/portfolio/orders", h))
	assert.Error(t, s.Verify(http.MethodGet, "/trade-api/v2/portfolio/orders", h))

	_, err = NewRSASigner("x", []byte("not pem"))
	assert.Error(t, err)
}
