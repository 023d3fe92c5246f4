// Package crypto provides scrypt hashing for the operator key.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// N=16384 (2^14), r=8, p=1 are recommended for interactive logins.
const (
	scryptN       = 16384
	scryptR       = 8
	scryptP       = 1
	scryptKeyLen  = 32
	saltByteCount = 16
)

// HashWithScrypt hashes an input string using scrypt with the given salt.
// The salt is lowercased before use. Returns hex-encoded hash.
func HashWithScrypt(input, salt string) (string, error) {
	saltBytes := []byte(strings.ToLower(salt))
	dk, err := scrypt.Key([]byte(input), saltBytes, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("scrypt key derivation failed: %w", err)
	}
	return hex.EncodeToString(dk), nil
}

// OperatorKey holds only the salted hash of the configured operator key, so
// the plaintext does not stay in memory after startup.
type OperatorKey struct {
	salt string
	hash string
}

// NewOperatorKey hashes key with a fresh random salt. An empty key yields nil,
// which rejects every candidate.
func NewOperatorKey(key string) (*OperatorKey, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}

	raw := make([]byte, saltByteCount)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	salt := hex.EncodeToString(raw)

	hash, err := HashWithScrypt(key, salt)
	if err != nil {
		return nil, err
	}
	return &OperatorKey{salt: salt, hash: hash}, nil
}

// Enabled reports whether an operator key is configured.
func (k *OperatorKey) Enabled() bool {
	return k != nil
}

// Verify reports whether candidate matches the configured key. The hashes are
// compared in constant time.
func (k *OperatorKey) Verify(candidate string) bool {
	if k == nil || candidate == "" {
		return false
	}
	hash, err := HashWithScrypt(strings.TrimSpace(candidate), k.salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(k.hash)) == 1
}
