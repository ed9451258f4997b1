// Package model defines database models
package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID               string      `gorm:"primaryKey"`
	Email            string      `gorm:"uniqueIndex;not null"`
	PasswordHash     string      `gorm:"not null"`
	Role             Role        `gorm:"not null;default:USER"`
	Verified         bool        `gorm:"default:false"`
	ProfileCompleted bool        `gorm:"default:false"`
	Name             string
	Skills           StringSlice
	CreatedAt        time.Time
	ExpiresAt        *time.Time // Unverified accounts are removed after this point

	OTPTokens []OTPToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// PublicUser is the only shape of a user that leaves the API
type PublicUser struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Role             Role      `json:"role"`
	Skills           []string  `json:"skills"`
	Verified         bool      `json:"verified"`
	ProfileCompleted bool      `json:"profileCompleted"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (u *User) Public() PublicUser {
	skills := []string(u.Skills)
	if skills == nil {
		skills = []string{}
	}

	return PublicUser{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Role:             u.Role,
		Skills:           skills,
		Verified:         u.Verified,
		ProfileCompleted: u.ProfileCompleted,
		CreatedAt:        u.CreatedAt,
	}
}

// NormalizeEmail lower-cases and trims an address so lookups and the unique
// index agree on one spelling
func NormalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
