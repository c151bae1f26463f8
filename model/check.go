package model

import "time"

// CheckStatus is the lifecycle state of an InventoryCheck.
type CheckStatus = string

const (
	CheckStatusInProgress CheckStatus = "IN_PROGRESS"
	CheckStatusCompleted  CheckStatus = "COMPLETED"
	CheckStatusAbandoned  CheckStatus = "ABANDONED"
)

// Abandon reasons recorded on an ABANDONED check. Only AUTO_TIMEOUT
// abandonments can be resumed.
const (
	AbandonReasonAutoTimeout = "AUTO_TIMEOUT"
	AbandonReasonUser        = "USER"
	AbandonReasonAdmin       = "ADMIN"
)

// InventoryCheck is one shift-change verification session for an apparatus.
// At most one IN_PROGRESS check exists per apparatus at any time. Rows are
// never deleted; terminal checks are retained for audit.
type InventoryCheck struct {
	ID               int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	ApparatusID      int64       `gorm:"index:idx_check_apparatus;not null" json:"apparatus_id"`
	StationID        int64       `gorm:"index:idx_check_station;not null" json:"station_id"`
	PerformedBy      int64       `gorm:"not null" json:"performed_by"`
	Status           CheckStatus `gorm:"size:16;index:idx_check_status;not null" json:"status"`
	TotalItems       int         `gorm:"not null" json:"total_items"`
	VerifiedCount    int         `gorm:"default:0" json:"verified_count"`
	IssuesFoundCount int         `gorm:"default:0" json:"issues_found_count"`
	StartedAt        time.Time   `gorm:"not null" json:"started_at"`
	ResumedAt        *time.Time  `json:"resumed_at"`
	CompletedAt      *time.Time  `json:"completed_at"`
	AbandonedAt      *time.Time  `json:"abandoned_at"`
	AbandonReason    string      `gorm:"size:24" json:"abandon_reason"`
}

// Terminal reports whether the check has reached a final state.
func (c *InventoryCheck) Terminal() bool {
	return c.Status == CheckStatusCompleted || c.Status == CheckStatusAbandoned
}
