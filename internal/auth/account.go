package auth

import (
	"strings"
	"time"
)

// Account is the persisted principal for email/password sign-in. The admin
// flag lives here and is only ever read server-side; clients learn it through
// the role predicate, never by inspecting their own state.
type Account struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash []byte    `gorm:"column:password_hash;not null"`
	IsAdmin      bool      `gorm:"column:is_admin;not null;default:false"`
	Confirmed    bool      `gorm:"column:confirmed;not null;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Account) TableName() string {
	return "accounts"
}

// normalizeEmail canonicalizes an address for storage and lookup.
func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
