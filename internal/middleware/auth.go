package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"propscan-api/internal/model"
	"propscan-api/internal/service"
	"propscan-api/pkg/apierror"
	"propscan-api/pkg/response"
)

// TokenDataKey is the key for storing token data in request context.
const TokenDataKey contextKey = "token_data"

// publicPaths are served without credentials.
var publicPaths = map[string]bool{
	"/api/status":    true,
	"/api/v1/health": true,
	"/api/v1/ready":  true,
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	TokenService *service.TokenService
	APIKeys      []string
}

// NewAuthMiddleware creates an authentication middleware with injected dependencies.
// With no API keys configured every request is let through.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || len(cfg.APIKeys) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			// Try X-Token first (device session tokens)
			token := r.Header.Get("X-Token")
			if token != "" && cfg.TokenService != nil {
				tokenData, err := cfg.TokenService.ValidateToken(r.Context(), token)
				if err != nil {
					response.Error(w, apierror.Unauthorized("Invalid or expired token"))
					return
				}

				ctx := context.WithValue(r.Context(), TokenDataKey, tokenData)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// Fall back to X-API-Key
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if apiKey == "" {
				response.Error(w, apierror.Unauthorized("Authentication required. Use X-Token or X-API-Key header."))
				return
			}

			if !isValidKey(apiKey, cfg.APIKeys) {
				response.Error(w, apierror.Unauthorized("Invalid API key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isValidKey checks if the provided key is in the valid keys list.
func isValidKey(key string, validKeys []string) bool {
	for _, valid := range validKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return true
		}
	}
	return false
}

// GetTokenDataFromContext retrieves token data from request context.
func GetTokenDataFromContext(ctx context.Context) *model.TokenData {
	if data, ok := ctx.Value(TokenDataKey).(*model.TokenData); ok {
		return data
	}
	return nil
}
