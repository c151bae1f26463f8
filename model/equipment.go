package model

import "time"

// EquipmentItem is one serialized equipment unit stored in a compartment.
type EquipmentItem struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CompartmentID int64     `gorm:"index:idx_equipment_compartment;not null" json:"compartment_id"`
	Name          string    `gorm:"size:64;not null" json:"name"`
	SerialNumber  string    `gorm:"size:64" json:"serial_number"`
	Category      string    `gorm:"size:32" json:"category"` // hose, SCBA, hand tool, ...
	Active        bool      `gorm:"default:true" json:"active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ConsumableStock is a counted stock of a consumable (meds, fuel, foam)
// stored in a compartment.
type ConsumableStock struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	CompartmentID int64      `gorm:"index:idx_consumable_compartment;not null" json:"compartment_id"`
	Name          string     `gorm:"size:64;not null" json:"name"`
	Unit          string     `gorm:"size:16" json:"unit"` // each, liter, box
	QuantityOnHand int       `gorm:"default:0" json:"quantity_on_hand"`
	MinQuantity   int        `gorm:"default:0" json:"min_quantity"`
	ExpiresAt     *time.Time `json:"expires_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
