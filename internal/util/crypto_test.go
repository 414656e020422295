package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Run("generates 64 character hex string", func(t *testing.T) {
		token, err := GenerateToken()
		require.NoError(t, err)
		assert.Len(t, token, 64)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		token1, _ := GenerateToken()
		token2, _ := GenerateToken()
		assert.NotEqual(t, token1, token2)
	})

	t.Run("generates valid hex", func(t *testing.T) {
		token, _ := GenerateToken()
		for _, c := range token {
			assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'))
		}
	})
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual("secret", "secret"))
	assert.False(t, ConstantTimeEqual("secret", "Secret"))
	assert.False(t, ConstantTimeEqual("secret", "secret-longer"))
	assert.False(t, ConstantTimeEqual("", "secret"))
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"123456:ABC-DEF1234ghIkl", "123456:****"},
		{"no-colon", "****"},
		{":secret", "****"},
		{"", "****"},
	}

	for _, tc := range tests {
		t.Run(tc.token, func(t *testing.T) {
			assert.Equal(t, tc.want, MaskToken(tc.token))
		})
	}
}
