package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type User struct {
	ID             string         `db:"id" json:"id"`
	Email          string         `db:"email" json:"email"`
	PasswordHash   string         `db:"password_hash" json:"-"`
	Name           string         `db:"name" json:"name"`
	Address        *string        `db:"address" json:"address,omitempty"`
	BankAccount    *string        `db:"bank_account" json:"bankAccount,omitempty"`
	LinkedAccounts SocialAccounts `db:"linked_accounts" json:"linkedAccounts"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updatedAt"`
}

// SocialAccount is a per-platform slot embedded on the user record. The user
// holds at most one entry per platform; connecting a platform that already has
// an entry overwrites it.
type SocialAccount struct {
	Platform          string    `json:"platform"`
	PlatformUserID    string    `json:"platformUserId"`
	Username          string    `json:"username"`
	ProfilePictureURL string    `json:"profilePictureUrl"`
	Connected         bool      `json:"connected"`
	Followers         int64     `json:"followers"`
	Following         int64     `json:"following"`
	MediaCount        int64     `json:"mediaCount"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// SocialAccounts is stored as a JSONB array on the users table.
type SocialAccounts []SocialAccount

func (s SocialAccounts) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *SocialAccounts) Scan(src any) error {
	if src == nil {
		*s = SocialAccounts{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for SocialAccounts: %T", src)
	}
	return json.Unmarshal(data, s)
}

// FindPlatform returns the index of the platform's slot, or -1.
func (s SocialAccounts) FindPlatform(platform string) int {
	for i, acc := range s {
		if acc.Platform == platform {
			return i
		}
	}
	return -1
}

type CreateUserParams struct {
	Email        string
	PasswordHash string
	Name         string
	Address      *string
	BankAccount  *string
}

// UpdateUserParams carries field-level profile edits; nil fields are left
// untouched.
type UpdateUserParams struct {
	Name        *string
	Address     *string
	BankAccount *string
}
