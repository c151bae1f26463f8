package model

import "time"

// Account roles.
const (
	RoleFirefighter = "firefighter"
	RoleOfficer     = "officer"
	RoleAdmin       = "admin"
)

// Account represents a firefighter account.
type Account struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string     `gorm:"size:64;not null" json:"-"`
	DisplayName  string     `gorm:"size:64;not null" json:"display_name"`
	StationID    int64      `gorm:"index:idx_account_station" json:"station_id"`
	Role         string     `gorm:"size:16;default:firefighter" json:"role"`
	Status       int        `gorm:"default:1" json:"status"` // 0=disabled 1=active
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	LastLoginIP  string     `gorm:"size:45" json:"last_login_ip"`
}
