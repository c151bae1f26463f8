package model

import "time"

// Issue statuses.
const (
	IssueStatusOpen     = "OPEN"
	IssueStatusResolved = "RESOLVED"
)

// Issue is a tracked problem record created when a verified item is
// missing, damaged, expired or low. Resolution workflow lives outside this
// server; it only creates and lists them.
type Issue struct {
	ID                int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	StationID         int64      `gorm:"index:idx_issue_station;not null" json:"station_id"`
	ApparatusID       int64      `gorm:"index:idx_issue_apparatus;not null" json:"apparatus_id"`
	CheckItemID       *int64     `json:"check_item_id"`
	EquipmentItemID   *int64     `json:"equipment_item_id"`
	ConsumableStockID *int64     `json:"consumable_stock_id"`
	Kind              string     `gorm:"size:20;not null" json:"kind"` // mirrors the verification status
	Status            string     `gorm:"size:16;default:OPEN" json:"status"`
	Description       string     `gorm:"type:text" json:"description"`
	ReportedBy        int64      `gorm:"not null" json:"reported_by"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ResolvedAt        *time.Time `json:"resolved_at"`
}
