package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"propscan-api/internal/device"
	"propscan-api/internal/middleware"
	"propscan-api/internal/model"
	"propscan-api/internal/service"
	"propscan-api/pkg/apierror"
	"propscan-api/pkg/response"
)

// AuthHandler exchanges API keys for device session tokens.
type AuthHandler struct {
	tokenService *service.TokenService
}

// NewAuthHandler creates a new auth handler. tokenService may be nil when
// Redis is not configured.
func NewAuthHandler(tokenService *service.TokenService) *AuthHandler {
	return &AuthHandler{tokenService: tokenService}
}

// TokenRequest represents the request body for token generation.
type TokenRequest struct {
	DeviceID string `json:"device_id"`
	Platform string `json:"platform"`
}

// TokenResponse represents the response for token generation.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// GenerateToken handles POST /auth/token
func (h *AuthHandler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	if h.tokenService == nil {
		response.Error(w, apierror.ServiceUnavailable("Session tokens are not enabled"))
		return
	}
	if middleware.GetTokenDataFromContext(r.Context()) != nil {
		response.Error(w, apierror.Unauthorized("An API key is required to issue tokens"))
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.DeviceID == "" {
		response.Error(w, apierror.BadRequest("device_id is required"))
		return
	}
	if req.Platform == "" {
		platform, _ := device.DetectPlatform(r.UserAgent())
		req.Platform = string(platform)
	}

	token, _, err := h.tokenService.GenerateToken(r.Context(), model.TokenData{
		DeviceID: req.DeviceID,
		Platform: req.Platform,
	})
	if err != nil {
		response.Error(w, apierror.Unknown("failed to generate token"))
		return
	}

	response.OK(w, TokenResponse{
		Token:     token,
		ExpiresIn: int(h.tokenService.TTL().Seconds()),
	})
}

// RevokeToken handles POST /auth/revoke
func (h *AuthHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requireToken(w, r)
	if !ok {
		return
	}

	if err := h.tokenService.RevokeToken(r.Context(), token); err != nil {
		response.Error(w, apierror.Unknown("failed to revoke token"))
		return
	}

	response.OK(w, map[string]string{"status": "revoked"})
}

// RefreshToken handles POST /auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requireToken(w, r)
	if !ok {
		return
	}

	data, err := h.tokenService.RefreshToken(r.Context(), token)
	if errors.Is(err, service.ErrInvalidToken) || errors.Is(err, service.ErrTokenExpired) {
		response.Error(w, apierror.Unauthorized(err.Error()))
		return
	}
	if err != nil {
		response.Error(w, apierror.Unknown("failed to refresh token"))
		return
	}

	response.OK(w, map[string]interface{}{
		"status":     "refreshed",
		"expires_at": data.ExpiresAt,
		"expires_in": int(h.tokenService.TTL().Seconds()),
	})
}

func (h *AuthHandler) requireToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.tokenService == nil {
		response.Error(w, apierror.ServiceUnavailable("Session tokens are not enabled"))
		return "", false
	}
	token := r.Header.Get("X-Token")
	if token == "" {
		response.Error(w, apierror.BadRequest("X-Token header required"))
		return "", false
	}
	return token, true
}
