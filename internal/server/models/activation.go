package models

import (
	"encoding/json"
	"time"
)

// Activation is a short code a user hands to a device to bind it to their
// account.
type Activation struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	ActivationCode string          `json:"activation_code"`
	ExpiresAt      time.Time       `json:"expires_at"`
	IsActivated    bool            `json:"is_activated"`
	ActivatedAt    *time.Time      `json:"activated_at"`
	DeviceName     string          `json:"device_name,omitempty"`
	DeviceInfo     json.RawMessage `json:"device_info,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Expired reports whether the code can no longer be redeemed at now.
func (a *Activation) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// Redemption is what a device receives after redeeming a code.
type Redemption struct {
	Success     bool   `json:"success"`
	UserID      string `json:"user_id"`
	ProfileName string `json:"profile_name"`
	TokenHash   string `json:"token_hash"`
	Email       string `json:"email"`
}
