package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL is how long a request JWT stays valid.
const tokenTTL = 2 * time.Minute

// Signer issues short-lived EdDSA JWTs bound to a single request.
type Signer struct {
	keyName string
	key     ed25519.PrivateKey
	now     func() time.Time
}

// NewSigner creates a Signer for the named API key.
func NewSigner(keyName string, key ed25519.PrivateKey) (*Signer, error) {
	if keyName == "" {
		return nil, errors.New("crypto: api key name must not be empty")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: invalid ed25519 key length %d", len(key))
	}
	return &Signer{keyName: keyName, key: key, now: time.Now}, nil
}

// KeyName returns the API key name used as subject and key id.
func (s *Signer) KeyName() string {
	return s.keyName
}

// PublicKey returns the verification key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// RequestClaims are the JWT claims for one REST call.
type RequestClaims struct {
	URI string `json:"uri"`
	jwt.RegisteredClaims
}

// Token signs a JWT authorising method on host+path, for example
// ("GET", "api.coinbase.com", "/api/v3/brokerage/accounts").
func (s *Signer) Token(method, host, path string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: generating nonce: %w", err)
	}

	now := s.now()
	claims := RequestClaims{
		URI: fmt.Sprintf("%s %s%s", method, host, path),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "cdp",
			Subject:   s.keyName,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = s.keyName
	tok.Header["nonce"] = hex.EncodeToString(nonce)

	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("crypto: sign jwt: %w", err)
	}
	return signed, nil
}
