package model

import (
	"encoding/json"
	"time"
)

// ProviderCredential is one row per (platform, platform user id), overwritten
// on every successful code exchange or refresh. It is correlated to users only
// by platform user id, not a foreign key.
type ProviderCredential struct {
	ID             string          `db:"id" json:"id"`
	Platform       string          `db:"platform" json:"platform"`
	PlatformUserID string          `db:"platform_user_id" json:"platformUserId"`
	Username       string          `db:"username" json:"username"`
	AccessToken    string          `db:"access_token" json:"-"`
	RefreshToken   *string         `db:"refresh_token" json:"-"`
	TokenExpiresAt *time.Time      `db:"token_expires_at" json:"tokenExpiresAt,omitempty"`
	Profile        json.RawMessage `db:"profile" json:"profile,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

type UpsertCredentialParams struct {
	Platform       string
	PlatformUserID string
	Username       string
	AccessToken    string
	RefreshToken   *string
	TokenExpiresAt *time.Time
	Profile        json.RawMessage
}
