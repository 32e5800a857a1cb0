// Package model defines the data structures used throughout the application.
package model

import "time"

// Auth providers a user can sign in with.
const (
	ProviderPassword = "password"
	ProviderGitHub   = "github"
	ProviderGoogle   = "google"
)

// User represents a registered account.
//
// Password users have a bcrypt hash and an empty ProviderID. OAuth users have
// no hash; Provider + ProviderID identify them and are unique together.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Provider     string    `json:"provider"`
	ProviderID   string    `json:"providerId,omitempty"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
