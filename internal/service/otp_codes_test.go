package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode_LengthAndCharset(t *testing.T) {
	for _, length := range []int{4, 6, 8} {
		code, err := GenerateCode(length)
		require.NoError(t, err)
		assert.Len(t, code, length)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "code must contain digits only, got %q", code)
		}
	}
}

func TestGenerateCode_DefaultsLength(t *testing.T) {
	code, err := GenerateCode(0)
	require.NoError(t, err)
	assert.Len(t, code, 6)
}

func TestGenerateSalt_UniquePerCall(t *testing.T) {
	a, err := GenerateSalt()
	require.NoError(t, err)
	b, err := GenerateSalt()
	require.NoError(t, err)

	assert.Len(t, a, 32, "16 bytes hex-encoded")
	assert.NotEqual(t, a, b)
}

func TestHashCode_SaltChangesHash(t *testing.T) {
	h1 := HashCode("042137", "aa")
	h2 := HashCode("042137", "bb")

	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, h2, "the same code under different salts must hash differently")
}

func TestVerifyCode(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)
	hash := HashCode("042137", salt)

	assert.True(t, VerifyCode("042137", salt, hash))
	assert.False(t, VerifyCode("042138", salt, hash))
	assert.False(t, VerifyCode("042137", "wrongsalt", hash))
}
