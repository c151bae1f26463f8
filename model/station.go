package model

import "time"

// Station represents a fire station. Master data is managed elsewhere;
// this server only reads it for scoping and catalog joins.
type Station struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:64;not null" json:"name"`
	Code      string    `gorm:"uniqueIndex;size:16;not null" json:"code"`
	Address   string    `gorm:"size:255" json:"address"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
