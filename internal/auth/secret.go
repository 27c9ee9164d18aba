package auth

import (
	"crypto/rand"
	"io"
	"os"
	"path/filepath"

	"github.com/normgraph/normgraph/internal/types"
)

const (
	secretSize = 32
	// secretFilePerm keeps the signing secret owner-only.
	secretFilePerm = 0o600
)

// LoadOrCreateSecret returns the JWT signing secret stored at path,
// generating and persisting one on first use. A secret file readable
// by group or others is rejected.
func LoadOrCreateSecret(path string) ([]byte, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.Mode().Perm() != secretFilePerm {
			return nil, types.NewError(types.AUTH_TOKEN_INVALID,
				"secret file has insecure permissions, fix with: chmod 600 "+path)
		}
		secret, err := os.ReadFile(path)
		if err != nil {
			return nil, types.WrapError(types.AUTH_TOKEN_INVALID, "failed to read secret file", err)
		}
		if len(secret) != secretSize {
			return nil, types.NewError(types.AUTH_TOKEN_INVALID, "secret file has wrong size")
		}
		return secret, nil

	case os.IsNotExist(err):
		secret := make([]byte, secretSize)
		if _, err := io.ReadFull(rand.Reader, secret); err != nil {
			return nil, types.WrapError(types.AUTH_TOKEN_INVALID, "failed to generate secret", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, types.WrapError(types.AUTH_TOKEN_INVALID, "failed to create secret directory", err)
		}
		if err := os.WriteFile(path, secret, secretFilePerm); err != nil {
			return nil, types.WrapError(types.AUTH_TOKEN_INVALID, "failed to write secret file", err)
		}
		return secret, nil

	default:
		return nil, types.WrapError(types.AUTH_TOKEN_INVALID, "failed to stat secret file", err)
	}
}
