package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keystone-auth/keystone/internal/auth"
	_ "github.com/keystone-auth/keystone/testing"
)

func TestBcryptHashVerify(t *testing.T) {
	hasher := auth.NewBcryptHasher(4)

	hash, err := hasher.Hash("secret123")
	require.NoError(t, err)
	require.NotEqual(t, "secret123", hash)
	require.True(t, hasher.Verify("secret123", hash))
	require.False(t, hasher.Verify("secret124", hash))
}

func TestBcryptHashSalted(t *testing.T) {
	hasher := auth.NewBcryptHasher(4)

	first, err := hasher.Hash("secret123")
	require.NoError(t, err)
	second, err := hasher.Hash("secret123")
	require.NoError(t, err)

	// Independent salts: same input, different outputs, both verify.
	require.NotEqual(t, first, second)
	require.True(t, hasher.Verify("secret123", first))
	require.True(t, hasher.Verify("secret123", second))
}

func TestBcryptVerifyMalformedHash(t *testing.T) {
	hasher := auth.NewBcryptHasher(4)

	require.False(t, hasher.Verify("secret123", ""))
	require.False(t, hasher.Verify("secret123", "not-a-bcrypt-hash"))
}

func TestBcryptCostFallback(t *testing.T) {
	hasher := auth.NewBcryptHasher(999)

	hash, err := hasher.Hash("secret123")
	require.NoError(t, err)
	require.True(t, hasher.Verify("secret123", hash))
}
