package auth

import (
	"testing"
	"time"

	"stock-insight/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParseToken(t *testing.T) {
	svc := NewService("test-secret")
	user := &models.User{ID: 7, Username: "analyst", Role: "admin"}

	token, err := svc.IssueToken(user)
	require.NoError(t, err)

	claims, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "analyst", claims.Username)
	assert.Equal(t, "admin", claims.Role)
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := NewService("secret-a").IssueToken(&models.User{ID: 1, Username: "u"})
	require.NoError(t, err)

	_, err = NewService("secret-b").ParseToken(token)
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	svc := NewService("test-secret")
	svc.ttl = -time.Minute

	token, err := svc.IssueToken(&models.User{ID: 1, Username: "u"})
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	assert.Error(t, err)
}

func TestPasswordRoundTrip(t *testing.T) {
	svc := NewService("test-secret")

	hash, err := svc.HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, svc.CheckPassword(hash, "hunter2"))
	assert.False(t, svc.CheckPassword(hash, "hunter3"))
}
