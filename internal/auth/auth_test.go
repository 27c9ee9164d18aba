package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgraph/normgraph/internal/types"
)

func newTestHandler(t *testing.T, expiry time.Duration) *Handler {
	t.Helper()
	h, err := NewHandler([]byte("test-secret-test-secret-test-sec"), expiry)
	require.NoError(t, err)
	return h
}

func TestIssueAndVerify(t *testing.T) {
	h := newTestHandler(t, time.Hour)

	token, err := h.Issue("alice", []Role{RoleEditor})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := h.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, []Role{RoleEditor}, claims.Roles)

	t.Run("empty subject rejected", func(t *testing.T) {
		_, err := h.Issue("", []Role{RoleViewer})
		assert.Error(t, err)
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		_, err := h.Issue("bob", []Role{"superuser"})
		assert.Error(t, err)
	})

	t.Run("wrong secret fails verification", func(t *testing.T) {
		other, err := NewHandler([]byte("another-secret-another-secret-ab"), time.Hour)
		require.NoError(t, err)
		_, err = other.Verify(token)
		require.Error(t, err)
		assert.Equal(t, types.AUTH_TOKEN_INVALID, types.CodeOf(err))
	})

	t.Run("garbage token fails", func(t *testing.T) {
		_, err := h.Verify("not.a.token")
		require.Error(t, err)
		assert.Equal(t, types.AUTH_TOKEN_INVALID, types.CodeOf(err))
	})
}

func TestVerifyExpired(t *testing.T) {
	// Expiry shorter than the verification leeway still validates;
	// make it clearly past the leeway instead.
	h := newTestHandler(t, -2*verifyLeeway)

	token, err := h.Issue("alice", []Role{RoleViewer})
	require.NoError(t, err)

	_, err = h.Verify(token)
	require.Error(t, err)
	assert.Equal(t, types.AUTH_TOKEN_EXPIRED, types.CodeOf(err))
}

func TestEmptySecretRejected(t *testing.T) {
	_, err := NewHandler(nil, time.Hour)
	assert.Error(t, err)
}

func TestPermissions(t *testing.T) {
	cases := []struct {
		roles []Role
		perm  Permission
		want  bool
	}{
		{[]Role{RoleAdmin}, PermissionManage, true},
		{[]Role{RoleAdmin}, PermissionIngest, true},
		{[]Role{RoleEditor}, PermissionIngest, true},
		{[]Role{RoleEditor}, PermissionManage, false},
		{[]Role{RoleViewer}, PermissionQuery, true},
		{[]Role{RoleViewer}, PermissionIngest, false},
		{[]Role{RoleViewer, RoleEditor}, PermissionIngest, true},
		{nil, PermissionQuery, false},
		{[]Role{"unknown"}, PermissionQuery, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HasPermission(tc.roles, tc.perm),
			"roles %v perm %s", tc.roles, tc.perm)
	}
}

func TestAPIKeyHashing(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.Contains(t, key, "ngk_")

	stored, err := HashAPIKey(key)
	require.NoError(t, err)

	assert.True(t, VerifyAPIKey(key, stored))
	assert.False(t, VerifyAPIKey("wrong", stored))
	assert.False(t, VerifyAPIKey(key, "malformed"))

	t.Run("hashes are salted", func(t *testing.T) {
		again, err := HashAPIKey(key)
		require.NoError(t, err)
		assert.NotEqual(t, stored, again)
		assert.True(t, VerifyAPIKey(key, again))
	})

	t.Run("empty key rejected", func(t *testing.T) {
		_, err := HashAPIKey("")
		assert.Error(t, err)
	})
}

func TestLoadOrCreateSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "jwt.secret")

	first, err := LoadOrCreateSecret(path)
	require.NoError(t, err)
	assert.Len(t, first, secretSize)

	t.Run("second load returns the same secret", func(t *testing.T) {
		second, err := LoadOrCreateSecret(path)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("created with owner-only permissions", func(t *testing.T) {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("insecure permissions rejected", func(t *testing.T) {
		require.NoError(t, os.Chmod(path, 0o644))
		_, err := LoadOrCreateSecret(path)
		assert.Error(t, err)
	})
}
