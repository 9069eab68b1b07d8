package models

import "time"

// IPActivityModel counts requests per (IP, endpoint, method).
type IPActivityModel struct {
	Base
	IPAddress      string    `json:"ip_address"      gorm:"size:45;not null;uniqueIndex:idx_ip_activity_key,priority:1"`
	Endpoint       string    `json:"endpoint"        gorm:"size:255;not null;uniqueIndex:idx_ip_activity_key,priority:2"`
	Method         string    `json:"method"          gorm:"size:10;not null;uniqueIndex:idx_ip_activity_key,priority:3"`
	UserID         *string   `json:"user_id"         gorm:"type:char(36);index"`
	RequestCount   int64     `json:"request_count"   gorm:"not null"`
	FailedAttempts int64     `json:"failed_attempts" gorm:"not null"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"       gorm:"index"`
	IsSuspicious   bool      `json:"is_suspicious"   gorm:"index"`
}

func (IPActivityModel) TableName() string { return "ip_activities" }

// BlacklistedIPModel blocks an address at the access gate while IsActive.
type BlacklistedIPModel struct {
	Base
	IPAddress string `json:"ip_address" gorm:"size:45;uniqueIndex;not null"`
	Reason    string `json:"reason"     gorm:"size:255"`
	IsActive  bool   `json:"is_active"  gorm:"index"`
}

func (BlacklistedIPModel) TableName() string { return "blacklisted_ips" }
