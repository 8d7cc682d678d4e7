package model

import "time"

// TokenData contains the data stored with a device session token.
type TokenData struct {
	DeviceID  string    `json:"device_id"`
	Platform  string    `json:"platform,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
