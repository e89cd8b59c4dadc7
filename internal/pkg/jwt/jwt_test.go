package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing"

func TestGenerateAdmissionToken(t *testing.T) {
	t.Run("generate valid token", func(t *testing.T) {
		key := "RL-AAAAAAAA-BBBBBBBB-CCCCCCCC"
		token, err := GenerateAdmissionToken(key, testSecret, 15)

		require.NoError(t, err)
		assert.NotEmpty(t, token)

		claims, err := ParseAdmissionToken(token, testSecret)
		require.NoError(t, err)
		assert.Equal(t, key, claims.LicenseKey)
		assert.True(t, claims.ExpiresAt.After(time.Now()))
	})

	t.Run("different keys produce different tokens", func(t *testing.T) {
		token1, err := GenerateAdmissionToken("RL-AAAAAAAA-AAAAAAAA-AAAAAAAA", testSecret, 15)
		require.NoError(t, err)

		token2, err := GenerateAdmissionToken("RL-BBBBBBBB-BBBBBBBB-BBBBBBBB", testSecret, 15)
		require.NoError(t, err)

		assert.NotEqual(t, token1, token2)
	})
}

func TestParseAdmissionToken(t *testing.T) {
	t.Run("wrong secret", func(t *testing.T) {
		token, _ := GenerateAdmissionToken("RL-AAAAAAAA-BBBBBBBB-CCCCCCCC", testSecret, 15)

		claims, err := ParseAdmissionToken(token, "wrong-secret")

		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Nil(t, claims)
	})

	t.Run("invalid token string", func(t *testing.T) {
		claims, err := ParseAdmissionToken("invalid.token.string", testSecret)

		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Nil(t, claims)
	})

	t.Run("admin token rejected as admission token", func(t *testing.T) {
		token, err := GenerateAdminToken("admin", testSecret, 24)
		require.NoError(t, err)

		claims, err := ParseAdmissionToken(token, testSecret)

		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Nil(t, claims)
	})
}

func TestGenerateAdminToken(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		token, err := GenerateAdminToken("admin", testSecret, 24)
		require.NoError(t, err)

		claims, err := ParseAdminToken(token, testSecret)
		require.NoError(t, err)
		assert.Equal(t, "admin", claims.Username)
	})

	t.Run("admission token rejected as admin token", func(t *testing.T) {
		token, err := GenerateAdmissionToken("RL-AAAAAAAA-BBBBBBBB-CCCCCCCC", testSecret, 15)
		require.NoError(t, err)

		claims, err := ParseAdminToken(token, testSecret)

		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Nil(t, claims)
	})
}
