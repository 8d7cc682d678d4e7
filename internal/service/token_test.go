package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propscan-api/internal/model"
)

func newTokenService(t *testing.T, ttl time.Duration) (*TokenService, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenService(client, ttl), mr
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc, mr := newTokenService(t, 10*time.Minute)
	ctx := context.Background()

	token, data, err := svc.GenerateToken(ctx, model.TokenData{DeviceID: "dev-1", Platform: "Android"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.Equal(t, 10*time.Minute, data.ExpiresAt.Sub(data.CreatedAt))
	assert.True(t, mr.Exists(TokenRedisKeyPrefix+token))
	assert.Equal(t, 10*time.Minute, mr.TTL(TokenRedisKeyPrefix+token))

	got, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", got.DeviceID)
	assert.Equal(t, "Android", got.Platform)
}

func TestValidateTokenRejects(t *testing.T) {
	svc, mr := newTokenService(t, time.Minute)
	ctx := context.Background()

	_, err := svc.ValidateToken(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.ValidateToken(ctx, "vht_abc")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.ValidateToken(ctx, TokenPrefix+"unknown")
	assert.ErrorIs(t, err, ErrTokenExpired)

	token, _, err := svc.GenerateToken(ctx, model.TokenData{DeviceID: "dev-1"})
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateTokenPastExpiryDeletesKey(t *testing.T) {
	svc, mr := newTokenService(t, time.Minute)
	ctx := context.Background()

	token, _, err := svc.GenerateToken(ctx, model.TokenData{DeviceID: "dev-1"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.False(t, mr.Exists(TokenRedisKeyPrefix+token))
}

func TestRefreshAndRevokeToken(t *testing.T) {
	svc, mr := newTokenService(t, time.Minute)
	ctx := context.Background()

	token, issued, err := svc.GenerateToken(ctx, model.TokenData{DeviceID: "dev-1"})
	require.NoError(t, err)

	mr.FastForward(30 * time.Second)
	svc.now = func() time.Time { return issued.CreatedAt.Add(30 * time.Second) }

	refreshed, err := svc.RefreshToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, refreshed.ExpiresAt.After(issued.ExpiresAt))
	assert.Equal(t, time.Minute, mr.TTL(TokenRedisKeyPrefix+token))

	require.NoError(t, svc.RevokeToken(ctx, token))
	_, err = svc.RefreshToken(ctx, token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}
