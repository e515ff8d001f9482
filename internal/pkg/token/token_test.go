package token

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNumericCode(t *testing.T) {
	re := regexp.MustCompile(`^[0-9]{6}$`)
	for i := 0; i < 50; i++ {
		c, err := NewNumericCode(6)
		require.NoError(t, err)
		assert.Regexp(t, re, c)
	}
}

func TestNewAlphanumeric_Length(t *testing.T) {
	g, err := NewAlphanumeric(32)
	require.NoError(t, err)
	assert.Len(t, g, 32)
	assert.Regexp(t, `^[A-Za-z0-9]+$`, g)
}

func TestHash_StableAndHex(t *testing.T) {
	assert.Equal(t, Hash("123456"), Hash("123456"))
	assert.NotEqual(t, Hash("123456"), Hash("123457"))
	assert.Len(t, Hash("123456"), 64)
}

func TestNewRefreshToken(t *testing.T) {
	a, err := NewRefreshToken()
	require.NoError(t, err)
	b, err := NewRefreshToken()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
