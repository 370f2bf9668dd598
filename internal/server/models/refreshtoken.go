package models

import "time"

// RefreshToken is a long-lived opaque token exchanged for a new access token.
// It is rotated on every use.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}

// SignInToken is a one-time credential handed to a device that redeemed an
// activation code. Only the SHA-256 of the token is stored.
type SignInToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
