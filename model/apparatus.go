package model

import "time"

// Apparatus represents one fire vehicle carrying tracked equipment.
type Apparatus struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	StationID int64     `gorm:"index:idx_apparatus_station;not null" json:"station_id"`
	Code      string    `gorm:"size:16;not null" json:"code"` // e.g. "E-1", "L-3"
	Name      string    `gorm:"size:64;not null" json:"name"`
	Kind      string    `gorm:"size:24" json:"kind"` // engine, ladder, rescue, tanker
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Compartment is a storage location on an apparatus.
type Compartment struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ApparatusID int64  `gorm:"index:idx_compartment_apparatus;not null" json:"apparatus_id"`
	Code        string `gorm:"size:16;not null" json:"code"` // e.g. "D1", "REAR"
	Name        string `gorm:"size:64;not null" json:"name"`
	SortOrder   int    `gorm:"default:0" json:"sort_order"`
}
