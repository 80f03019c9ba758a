package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	m := NewManager("test-secret")

	token, err := m.Generate("jti-1", "user-1", "Alice", time.Minute)
	require.NoError(t, err)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "jti-1", claims.ID)
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := NewManager("secret-a").Generate("jti-1", "user-1", "", time.Minute)
	require.NoError(t, err)

	_, err = NewManager("secret-b").Parse(token)
	assert.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m := NewManager("test-secret")
	token, err := m.Generate("jti-1", "user-1", "", -time.Minute)
	require.NoError(t, err)

	_, err = m.Parse(token)
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := NewManager("test-secret").Parse("not.a.token")
	assert.Error(t, err)
}
