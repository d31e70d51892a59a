package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)

	token, err := manager.GenerateToken(42, "player1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "player1", claims.Username)
	assert.Equal(t, "arcade-server", claims.Issuer)
}

func TestJWTManager_RejectsExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", -time.Hour)

	token, err := manager.GenerateToken(1, "player1")
	require.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTManager_RejectsWrongSecret(t *testing.T) {
	manager := NewJWTManager("secret-a", time.Hour)
	other := NewJWTManager("secret-b", time.Hour)

	token, err := manager.GenerateToken(1, "player1")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTManager_RejectsGarbage(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)

	_, err := manager.ValidateToken("not.a.token")
	assert.Error(t, err)
}
