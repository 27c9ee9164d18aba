package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/scrypt"

	"github.com/normgraph/normgraph/internal/types"
)

// scrypt parameters: interactive-strength per the 2017 guidance,
// adequate for high-entropy generated keys.
const (
	scryptN       = 32768
	scryptR       = 8
	scryptP       = 1
	scryptKeyLen  = 32
	scryptSaltLen = 16
)

// HashAPIKey derives a storable hash of an API key. The result embeds
// the salt: "base64(salt)$base64(hash)".
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", types.NewError(types.AUTH_KEY_INVALID, "API key cannot be empty")
	}

	salt := make([]byte, scryptSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", types.WrapError(types.AUTH_KEY_INVALID, "failed to generate salt", err)
	}

	hash, err := scrypt.Key([]byte(key), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", types.WrapError(types.AUTH_KEY_INVALID, "failed to hash API key", err)
	}

	return base64.RawStdEncoding.EncodeToString(salt) + "$" +
		base64.RawStdEncoding.EncodeToString(hash), nil
}

// VerifyAPIKey checks a presented key against a stored hash in
// constant time.
func VerifyAPIKey(key, stored string) bool {
	parts := strings.SplitN(stored, "$", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	got, err := scrypt.Key([]byte(key), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}

// GenerateAPIKey produces a random key with a recognizable prefix.
func GenerateAPIKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", types.WrapError(types.AUTH_KEY_INVALID, "failed to generate API key", err)
	}
	return "ngk_" + base64.RawURLEncoding.EncodeToString(raw), nil
}
