// Package models defines the rows the server persists and returns.
package models

import "time"

// Role is the stored role attribute used for authorization.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleGuardian   Role = "guardian"
	RoleUser       Role = "user"
)

// IsOperator reports whether the role may manage builds and CI settings.
func (r Role) IsOperator() bool {
	return r == RoleSuperAdmin
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleGuardian, RoleUser:
		return true
	}
	return false
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

type Profile struct {
	UserID    string    `json:"user_id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultDisplayName is shown when neither a full name nor an email is known.
const DefaultDisplayName = "Kullanıcı"

// DisplayName picks the name shown to a redeeming device: the profile's full
// name, then the account email, then DefaultDisplayName. p may be nil.
func DisplayName(p *Profile, email string) string {
	if p != nil && p.FullName != "" {
		return p.FullName
	}
	if email != "" {
		return email
	}
	return DefaultDisplayName
}
