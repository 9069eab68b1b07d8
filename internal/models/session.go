package models

import "time"

// RefreshTokenModel is the ledger of issued refresh tokens. The row ID is the token's jti;
// a non-nil RevokedAt blacklists the token and every access token minted from it.
type RefreshTokenModel struct {
	Base
	UserID    string     `json:"user_id"    gorm:"type:char(36);index;not null"`
	IP        string     `json:"ip"         gorm:"size:45"`
	UA        string     `json:"ua"         gorm:"type:text"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"index;not null"`
	RevokedAt *time.Time `json:"revoked_at" gorm:"index"`
}

func (RefreshTokenModel) TableName() string { return "refresh_tokens" }

// Device classifications.
const (
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceDesktop = "Desktop"
	DeviceBot     = "Bot"
	DeviceUnknown = "Unknown"
)

// DeviceSessionModel is one row per (user, IP, raw user agent) seen on authenticated requests.
// UAHash stands in for the raw agent in the unique key so the index stays short.
type DeviceSessionModel struct {
	Base
	UserID       string    `json:"-"             gorm:"type:char(36);not null;uniqueIndex:idx_device_key,priority:1"`
	IPAddress    string    `json:"ip_address"    gorm:"size:45;not null;uniqueIndex:idx_device_key,priority:2"`
	UAHash       string    `json:"-"             gorm:"size:16;not null;uniqueIndex:idx_device_key,priority:3"`
	UserAgent    string    `json:"user_agent"    gorm:"type:text"`
	DeviceType   string    `json:"device_type"   gorm:"size:16"`
	OS           string    `json:"os"            gorm:"size:64"`
	Browser      string    `json:"browser"       gorm:"size:64"`
	IsActive     bool      `json:"is_active"`
	LastActivity time.Time `json:"last_activity" gorm:"index"`
}

func (DeviceSessionModel) TableName() string { return "user_sessions" }
