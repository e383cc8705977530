/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// APIKey represents an API key for programmatic access. Only the SHA-256
// hash of the key is stored; the plaintext is shown once at creation.
type APIKey struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string     `gorm:"type:uuid;index;not null" json:"user_id"`
	User       User       `gorm:"foreignKey:UserID" json:"-"`
	Name       string     `gorm:"not null" json:"name"`
	KeyHash    string     `gorm:"not null;uniqueIndex" json:"-"`
	KeyPrefix  string     `gorm:"size:11" json:"key_prefix"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsExpired returns true if the API key has expired. Keys without an expiry
// never expire.
func (k *APIKey) IsExpired() bool {
	return k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt)
}

// IsRevoked returns true if the API key has been revoked.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// IsValid returns true if the API key is neither expired nor revoked.
func (k *APIKey) IsValid() bool {
	return !k.IsExpired() && !k.IsRevoked()
}
