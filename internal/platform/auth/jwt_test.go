package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHS256RoundTrip(t *testing.T) {
	ts, err := NewHS256Service("secret", "urlbot", time.Hour)
	require.NoError(t, err)

	token, err := ts.Sign("ops", RoleAdmin)
	require.NoError(t, err)

	claims, err := ts.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Claims{Subject: "ops", Role: RoleAdmin}, claims)
}

func TestHS256Rejects(t *testing.T) {
	ts, err := NewHS256Service("secret", "urlbot", time.Hour)
	require.NoError(t, err)

	_, err = ts.Sign("", RoleAdmin)
	assert.ErrorIs(t, err, ErrEmptySubject)

	other, err := NewHS256Service("other-secret", "urlbot", time.Hour)
	require.NoError(t, err)
	token, err := other.Sign("ops", RoleAdmin)
	require.NoError(t, err)
	_, err = ts.Verify(token)
	assert.Error(t, err, "wrong secret")

	foreign, err := NewHS256Service("secret", "someone-else", time.Hour)
	require.NoError(t, err)
	token, err = foreign.Sign("ops", RoleAdmin)
	require.NoError(t, err)
	_, err = ts.Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	expired, err := NewHS256Service("secret", "urlbot", time.Minute)
	require.NoError(t, err)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err = expired.Sign("ops", RoleAdmin)
	require.NoError(t, err)
	_, err = ts.Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = ts.Verify("not-a-token")
	assert.Error(t, err)
}

func TestNewHS256ServiceValidates(t *testing.T) {
	_, err := NewHS256Service("", "urlbot", time.Hour)
	assert.Error(t, err)
	_, err = NewHS256Service("secret", "", time.Hour)
	assert.Error(t, err)
	_, err = NewHS256Service("secret", "urlbot", 0)
	assert.Error(t, err)
}

func TestIdentityContext(t *testing.T) {
	_, ok := GetIdentity(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{Subject: "ops", Role: RoleAdmin})
	id, ok := GetIdentity(ctx)
	require.True(t, ok)
	assert.Equal(t, "ops", id.Subject)
}
