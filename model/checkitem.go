package model

import "time"

// VerificationStatus is the outcome recorded for one verified item.
type VerificationStatus = string

const (
	VerifyPresent        VerificationStatus = "PRESENT"
	VerifyMissing        VerificationStatus = "MISSING"
	VerifyPresentDamaged VerificationStatus = "PRESENT_DAMAGED"
	VerifyExpired        VerificationStatus = "EXPIRED"
	VerifyLowQuantity    VerificationStatus = "LOW_QUANTITY"
	VerifySkipped        VerificationStatus = "SKIPPED"
)

// ProblemStatus reports whether a verification outcome requires an Issue.
func ProblemStatus(s VerificationStatus) bool {
	switch s {
	case VerifyMissing, VerifyPresentDamaged, VerifyExpired, VerifyLowQuantity:
		return true
	}
	return false
}

// InventoryCheckItem is the immutable record of one verification outcome.
// Exactly one of EquipmentItemID / ConsumableStockID is set; the unique
// indexes enforce at most one record per (check, target) even under
// concurrent writes.
type InventoryCheckItem struct {
	ID                int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	CheckID           int64      `gorm:"index:idx_item_check;uniqueIndex:uniq_check_equipment;uniqueIndex:uniq_check_consumable;not null" json:"check_id"`
	CompartmentID     int64      `gorm:"not null" json:"compartment_id"`
	EquipmentItemID   *int64     `gorm:"uniqueIndex:uniq_check_equipment" json:"equipment_item_id"`
	ConsumableStockID *int64     `gorm:"uniqueIndex:uniq_check_consumable" json:"consumable_stock_id"`
	ManifestEntryID   *int64     `json:"manifest_entry_id"`
	VerificationStatus VerificationStatus `gorm:"size:20;not null" json:"verification_status"`
	QuantityFound     *int       `json:"quantity_found"`
	QuantityExpected  *int       `json:"quantity_expected"`
	ConditionNotes    string     `gorm:"type:text" json:"condition_notes"`
	IssueID           *int64     `json:"issue_id"`
	VerifiedBy        int64      `gorm:"not null" json:"verified_by"`
	VerifiedAt        time.Time  `gorm:"not null" json:"verified_at"`
}
