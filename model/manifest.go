package model

// ManifestEntry defines what is expected in a compartment. Exactly one of
// EquipmentItemID / ConsumableStockID is set.
type ManifestEntry struct {
	ID                int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CompartmentID     int64  `gorm:"index:idx_manifest_compartment;not null" json:"compartment_id"`
	EquipmentItemID   *int64 `gorm:"index:idx_manifest_equipment" json:"equipment_item_id"`
	ConsumableStockID *int64 `gorm:"index:idx_manifest_consumable" json:"consumable_stock_id"`
	ExpectedQty       int    `gorm:"default:1" json:"expected_qty"`
	Required          bool   `gorm:"default:true" json:"required"`
}
