package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Account states derived from the flag columns.
const (
	StatusPending     = "pending"
	StatusActive      = "active"
	StatusDeactivated = "deactivated"
	StatusSuspended   = "suspended"
)

// UserModel is a platform account. Email and username are stored lowercased.
type UserModel struct {
	Base
	Name            string     `json:"name"              gorm:"size:80;not null"`
	Username        string     `json:"username"          gorm:"size:50;uniqueIndex;not null"`
	Email           string     `json:"email"             gorm:"size:254;uniqueIndex;not null"`
	Password        string     `json:"-"                 gorm:"size:255"`
	DateJoined      time.Time  `json:"date_joined"       gorm:"index"`
	LastLogin       *time.Time `json:"last_login"`
	IsActive        bool       `json:"is_active"`
	IsVerified      bool       `json:"is_verified"`
	IsStaff         bool       `json:"is_staff"`
	IsPlatformAdmin bool       `json:"is_platform_admin" gorm:"index"`

	NewEmail                 *string `json:"-" gorm:"size:254"`
	EmailVerificationPending bool    `json:"email_verification_pending"`

	AccountUpdatedAt *time.Time `json:"account_updated_at"`
	IsDeactivated    bool       `json:"is_deactivated"    gorm:"index"`
	DeactivatedAt    *time.Time `json:"deactivated_at"    gorm:"index"`
}

func (UserModel) TableName() string { return "users" }

func (u *UserModel) BeforeSave(tx *gorm.DB) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	return nil
}

// HasUsablePassword is false for accounts created through an identity provider.
func (u *UserModel) HasUsablePassword() bool { return u.Password != "" }

// PendingEmail returns the new address awaiting confirmation, or "".
func (u *UserModel) PendingEmail() string {
	if u.NewEmail == nil {
		return ""
	}
	return *u.NewEmail
}

func (u *UserModel) Status() string {
	switch {
	case u.IsDeactivated:
		return StatusDeactivated
	case !u.IsVerified:
		return StatusPending
	case !u.IsActive:
		return StatusSuspended
	default:
		return StatusActive
	}
}

// ProfileModel holds optional public profile data, one row per account.
type ProfileModel struct {
	Base
	UserID      string  `json:"-"            gorm:"type:char(36);uniqueIndex;not null"`
	Bio         string  `json:"bio"          gorm:"type:text"`
	Avatar      string  `json:"avatar"       gorm:"size:512"`
	Country     string  `json:"country"      gorm:"size:2;index"`
	PhoneNumber *string `json:"phone_number" gorm:"size:32;uniqueIndex"`
	Gender      string  `json:"gender"       gorm:"size:10"`
}

func (ProfileModel) TableName() string { return "user_profiles" }

// OAuthAccountModel links an external identity to an account.
type OAuthAccountModel struct {
	Base
	UserID      string     `json:"-"            gorm:"type:char(36);index;not null"`
	Provider    string     `json:"provider"     gorm:"size:32;uniqueIndex:idx_oauth_subject;not null"`
	ProviderUID string     `json:"provider_uid" gorm:"size:255;uniqueIndex:idx_oauth_subject;not null"`
	LastUsed    *time.Time `json:"last_used"`
}

func (OAuthAccountModel) TableName() string { return "oauth_accounts" }
