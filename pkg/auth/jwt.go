package auth

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codeready-toolchain/agentrelay/pkg/config"
)

const (
	// TokenLifetime is the validity of a minted key-pair JWT.
	TokenLifetime = time.Hour

	// refreshMargin is subtracted from the real expiry in Token.ExpiresAt.
	refreshMargin = 120 * time.Second
)

// Token is a minted key-pair JWT as returned to clients.
type Token struct {
	Token string `json:"token"`
	// ExpiresAt is a Unix time two minutes before the JWT's exp claim.
	ExpiresAt int64 `json:"expiresAt"`
}

// KeyPairSigner mints RS256 JWTs for key-pair authentication against the
// upstream account. The key file is read on every mint so rotated keys are
// picked up without a restart.
type KeyPairSigner struct {
	account string
	user    string
	keyPath string
	now     func() time.Time
	cache   *tokenCache
}

// NewKeyPairSigner creates a signer for the configured account and user.
func NewKeyPairSigner(cfg *config.SnowflakeConfig) *KeyPairSigner {
	return newKeyPairSigner(cfg, time.Now)
}

func newKeyPairSigner(cfg *config.SnowflakeConfig, now func() time.Time) *KeyPairSigner {
	return &KeyPairSigner{
		account: strings.ToUpper(cfg.Account),
		user:    strings.ToUpper(cfg.User),
		keyPath: cfg.PrivateKeyPath,
		now:     now,
		cache:   newTokenCache(now),
	}
}

// QualifiedUsername returns ACCOUNT.USER, the JWT subject.
func (s *KeyPairSigner) QualifiedUsername() string {
	return s.account + "." + s.user
}

// Token returns a usable token, minting a new one when the cached token is
// missing or near expiry.
func (s *KeyPairSigner) Token() (*Token, error) {
	if tok, ok := s.cache.get(s.QualifiedUsername()); ok {
		return tok, nil
	}
	tok, err := s.Mint()
	if err != nil {
		return nil, err
	}
	s.cache.set(s.QualifiedUsername(), tok)
	return tok, nil
}

// Mint signs a fresh token.
func (s *KeyPairSigner) Mint() (*Token, error) {
	key, err := s.loadKey()
	if err != nil {
		return nil, err
	}

	fp, err := Fingerprint(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	subject := s.QualifiedUsername()
	now := s.now().Truncate(time.Second)
	exp := now.Add(TokenLifetime)

	claims := jwt.RegisteredClaims{
		Issuer:    subject + "." + fp,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	slog.Debug("Key-pair JWT minted", "subject", subject, "expires", exp)
	return &Token{
		Token:     signed,
		ExpiresAt: exp.Add(-refreshMargin).Unix(),
	}, nil
}

func (s *KeyPairSigner) loadKey() (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(s.keyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, s.keyPath)
		}
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", s.keyPath, err)
	}
	return key, nil
}

// Fingerprint returns "SHA256:" followed by the base64 SHA-256 digest of
// the DER-encoded SubjectPublicKeyInfo of pub.
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("encode public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return "SHA256:" + base64.StdEncoding.EncodeToString(sum[:]), nil
}
