package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"propscan-api/internal/logger"
	"propscan-api/internal/model"
)

const (
	// TokenPrefix is the prefix for all device session tokens
	TokenPrefix = "pst_"

	// DefaultTokenTTL is used when no lifetime is configured
	DefaultTokenTTL = 1 * time.Hour

	// TokenRedisKeyPrefix is the Redis key prefix for tokens
	TokenRedisKeyPrefix = "propscan:token:"
)

var (
	ErrInvalidToken = errors.New("invalid token format")
	ErrTokenExpired = errors.New("token not found or expired")
)

// TokenService issues short-lived session tokens to scanning devices so
// they need not hold the long-lived API key.
type TokenService struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

// NewTokenService creates a new token service.
func NewTokenService(redisClient *redis.Client, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		redis: redisClient,
		ttl:   ttl,
		now:   time.Now,
		log:   logger.WithComponent("TokenService"),
	}
}

// TTL returns the token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// GenerateToken creates a new session token and stores it in Redis.
func (s *TokenService) GenerateToken(ctx context.Context, data model.TokenData) (string, *model.TokenData, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	token := TokenPrefix + hex.EncodeToString(tokenBytes)

	data.CreatedAt = s.now()
	data.ExpiresAt = data.CreatedAt.Add(s.ttl)

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", nil, fmt.Errorf("failed to serialize token data: %w", err)
	}

	if err := s.redis.Set(ctx, TokenRedisKeyPrefix+token, jsonData, s.ttl).Err(); err != nil {
		return "", nil, fmt.Errorf("failed to store token: %w", err)
	}

	s.log.Info().
		Str("device_id", data.DeviceID).
		Str("platform", data.Platform).
		Time("expires", data.ExpiresAt).
		Msg("Generated token")

	return token, &data, nil
}

// ValidateToken checks if a token is valid and returns its data.
func (s *TokenService) ValidateToken(ctx context.Context, token string) (*model.TokenData, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, ErrInvalidToken
	}

	key := TokenRedisKeyPrefix + token
	jsonData, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var data model.TokenData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse token data: %w", err)
	}

	if s.now().After(data.ExpiresAt) {
		s.redis.Del(ctx, key)
		return nil, ErrTokenExpired
	}

	return &data, nil
}

// RevokeToken deletes a token from Redis.
func (s *TokenService) RevokeToken(ctx context.Context, token string) error {
	return s.redis.Del(ctx, TokenRedisKeyPrefix+token).Err()
}

// RefreshToken extends the lifetime of an existing token.
func (s *TokenService) RefreshToken(ctx context.Context, token string) (*model.TokenData, error) {
	data, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	data.ExpiresAt = s.now().Add(s.ttl)

	newJSON, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, TokenRedisKeyPrefix+token, newJSON, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return data, nil
}
