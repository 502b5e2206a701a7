package utils

import (
	"testing"
	"time"

	"orders_manager/internal/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	config.GlobalConfig.JWT.Secret = "0123456789abcdef0123456789abcdef"

	t.Run("Round trips claims", func(t *testing.T) {
		token, expire, err := GenerateToken(42, "张三", "USER", time.Hour)
		require.NoError(t, err)
		require.NotNil(t, expire)

		claims, err := ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, int64(42), claims.UserID)
		assert.Equal(t, "张三", claims.UserName)
		assert.Equal(t, "USER", claims.UserType)
	})

	t.Run("Rejects expired token", func(t *testing.T) {
		token, _, err := GenerateToken(42, "", "USER", -time.Minute)
		require.NoError(t, err)

		_, err = ParseToken(token)
		assert.Error(t, err)
	})

	t.Run("Rejects token signed with another secret", func(t *testing.T) {
		token, _, err := GenerateToken(42, "", "USER", time.Hour)
		require.NoError(t, err)

		config.GlobalConfig.JWT.Secret = "another-secret-another-secret-xx"
		defer func() { config.GlobalConfig.JWT.Secret = "0123456789abcdef0123456789abcdef" }()
		_, err = ParseToken(token)
		assert.Error(t, err)
	})
}
