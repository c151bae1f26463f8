package check

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stationops/firecheck/cache"
	"github.com/stationops/firecheck/catalog"
	"github.com/stationops/firecheck/config"
	"github.com/stationops/firecheck/events"
	"github.com/stationops/firecheck/lock"
	"github.com/stationops/firecheck/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// startGuardTTL bounds how long a crashed start attempt can hold the
// per-apparatus start mutex.
const startGuardTTL = 10 * time.Second

// Verification is the input for one recorded outcome.
type Verification struct {
	CompartmentID    int64
	Target           Target
	Status           model.VerificationStatus
	Notes            string
	QuantityFound    *int
	QuantityExpected *int
	ManifestEntryID  *int64
	VerifiedBy       int64
	VerifiedByName   string
}

// CompartmentProgress is the per-compartment verified/issue tally.
type CompartmentProgress struct {
	CompartmentID int64 `json:"compartment_id"`
	Verified      int   `json:"verified"`
	Issues        int   `json:"issues"`
}

// Progress is the current session state used to render "12 of 47 verified".
type Progress struct {
	Check        *model.InventoryCheck `json:"check"`
	Compartments []CompartmentProgress `json:"compartments"`
}

// Service owns the lifecycle of inventory-check sessions. All lifecycle
// transitions and counter updates go through conditional writes keyed on
// the current status, so concurrent terminal transitions (user completes
// while the sweeper abandons, resume races the sweeper) resolve to exactly
// one persisted outcome and the loser sees a typed error.
type Service struct {
	db      *gorm.DB
	catalog *catalog.Reader
	locks   *lock.Manager
	events  *events.Broadcaster
	cache   cache.Cache
	cfg     config.CheckConfig
	logger  *zap.Logger
}

// NewService creates a check Service.
func NewService(
	db *gorm.DB,
	cat *catalog.Reader,
	locks *lock.Manager,
	b *events.Broadcaster,
	c cache.Cache,
	cfg config.CheckConfig,
	logger *zap.Logger,
) *Service {
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 4 * time.Hour
	}
	if cfg.ResumeWindow <= 0 {
		cfg.ResumeWindow = 30 * time.Minute
	}
	return &Service{
		db:      db,
		catalog: cat,
		locks:   locks,
		events:  b,
		cache:   c,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start begins a new check session for an apparatus. Fails with
// ErrCheckInProgress if one is already running. Concurrent starts for the
// same apparatus are serialized through a short-TTL SetNX guard so exactly
// one wins.
func (svc *Service) Start(ctx context.Context, apparatusID, stationID, userID int64, displayName string) (*model.InventoryCheck, error) {
	guardKey := fmt.Sprintf("lock:check:start:%d", apparatusID)
	ok, err := svc.cache.SetNX(ctx, guardKey, "1", startGuardTTL)
	if err != nil {
		return nil, fmt.Errorf("start guard: %w", err)
	}
	if !ok {
		return nil, ErrStartContended
	}
	defer svc.cache.Del(ctx, guardKey)

	var existing model.InventoryCheck
	err = svc.db.WithContext(ctx).
		Where("apparatus_id = ? AND status = ?", apparatusID, model.CheckStatusInProgress).
		First(&existing).Error
	if err == nil {
		return nil, ErrCheckInProgress
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup active check: %w", err)
	}

	details, err := svc.catalog.ApparatusDetails(ctx, apparatusID)
	if err != nil {
		return nil, err
	}

	chk := &model.InventoryCheck{
		ApparatusID: apparatusID,
		StationID:   stationID,
		PerformedBy: userID,
		Status:      model.CheckStatusInProgress,
		TotalItems:  details.TotalItems,
		StartedAt:   time.Now(),
	}
	if err := svc.db.WithContext(ctx).Create(chk).Error; err != nil {
		return nil, fmt.Errorf("create check: %w", err)
	}

	svc.events.Publish(&events.Event{
		Type:        events.TypeCheckStarted,
		ApparatusID: apparatusID,
		Payload: events.CheckStartedPayload{
			CheckID:       chk.ID,
			StartedBy:     userID,
			StartedByName: displayName,
			TotalItems:    chk.TotalItems,
		},
	})
	svc.logger.Info("check started",
		zap.Int64("check_id", chk.ID),
		zap.Int64("apparatus_id", apparatusID),
		zap.Int64("performed_by", userID),
		zap.Int("total_items", chk.TotalItems))
	return chk, nil
}

// RecordVerification persists one verification outcome. The item row, the
// Issue (for problem statuses) and the counter increments commit in one
// transaction; the ItemVerified event is published only after the commit.
func (svc *Service) RecordVerification(ctx context.Context, checkID int64, v Verification) (*model.InventoryCheckItem, error) {
	if !v.Target.Valid() {
		return nil, ErrInvalidTarget
	}
	if !validStatus(v.Status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, v.Status)
	}

	var item *model.InventoryCheckItem
	var after model.InventoryCheck

	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chk model.InventoryCheck
		if err := tx.Where("id = ? AND status = ?", checkID, model.CheckStatusInProgress).
			First(&chk).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCheckNotFound
			}
			return fmt.Errorf("load check: %w", err)
		}

		dupQuery := tx.Model(&model.InventoryCheckItem{}).Where("check_id = ?", checkID)
		if id, ok := v.Target.EquipmentItemID(); ok {
			dupQuery = dupQuery.Where("equipment_item_id = ?", id)
		} else if id, ok := v.Target.ConsumableStockID(); ok {
			dupQuery = dupQuery.Where("consumable_stock_id = ?", id)
		}
		var count int64
		if err := dupQuery.Count(&count).Error; err != nil {
			return fmt.Errorf("duplicate lookup: %w", err)
		}
		if count > 0 {
			return ErrDuplicateVerification
		}

		item = &model.InventoryCheckItem{
			CheckID:            checkID,
			CompartmentID:      v.CompartmentID,
			ManifestEntryID:    v.ManifestEntryID,
			VerificationStatus: v.Status,
			QuantityFound:      v.QuantityFound,
			QuantityExpected:   v.QuantityExpected,
			ConditionNotes:     v.Notes,
			VerifiedBy:         v.VerifiedBy,
			VerifiedAt:         time.Now(),
		}
		if id, ok := v.Target.EquipmentItemID(); ok {
			item.EquipmentItemID = &id
		}
		if id, ok := v.Target.ConsumableStockID(); ok {
			item.ConsumableStockID = &id
		}

		if err := tx.Create(item).Error; err != nil {
			// Concurrent verification of the same target: the unique
			// index is the authoritative duplicate check.
			if isUniqueViolation(err) {
				return ErrDuplicateVerification
			}
			return fmt.Errorf("create check item: %w", err)
		}

		problem := model.ProblemStatus(v.Status)
		if problem {
			issue := &model.Issue{
				StationID:         chk.StationID,
				ApparatusID:       chk.ApparatusID,
				CheckItemID:       &item.ID,
				EquipmentItemID:   item.EquipmentItemID,
				ConsumableStockID: item.ConsumableStockID,
				Kind:              v.Status,
				Status:            model.IssueStatusOpen,
				Description:       issueDescription(v),
				ReportedBy:        v.VerifiedBy,
			}
			if err := tx.Create(issue).Error; err != nil {
				return fmt.Errorf("create issue: %w", err)
			}
			item.IssueID = &issue.ID
			if err := tx.Model(item).Update("issue_id", issue.ID).Error; err != nil {
				return fmt.Errorf("link issue: %w", err)
			}
		}

		updates := map[string]interface{}{
			"verified_count": gorm.Expr("verified_count + 1"),
		}
		if problem {
			updates["issues_found_count"] = gorm.Expr("issues_found_count + 1")
		}
		res := tx.Model(&model.InventoryCheck{}).
			Where("id = ? AND status = ?", checkID, model.CheckStatusInProgress).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update counters: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Check went terminal between our read and the write; roll the
			// whole verification back rather than record into a closed session.
			return ErrCheckNotFound
		}

		return tx.First(&after, checkID).Error
	})
	if err != nil {
		return nil, err
	}

	svc.events.Publish(&events.Event{
		Type:        events.TypeItemVerified,
		ApparatusID: after.ApparatusID,
		Payload: events.ItemVerifiedPayload{
			CheckID:           checkID,
			CompartmentID:     v.CompartmentID,
			EquipmentItemID:   item.EquipmentItemID,
			ConsumableStockID: item.ConsumableStockID,
			Status:            v.Status,
			VerifiedBy:        v.VerifiedBy,
			VerifiedByName:    v.VerifiedByName,
			VerifiedCount:     after.VerifiedCount,
			IssuesFoundCount:  after.IssuesFoundCount,
			TotalItems:        after.TotalItems,
		},
	})
	return item, nil
}

// Complete transitions the check to COMPLETED. Partial checks are a valid
// outcome; incompleteness is surfaced to the user, not blocked.
func (svc *Service) Complete(ctx context.Context, checkID int64) (*model.InventoryCheck, error) {
	now := time.Now()
	res := svc.db.WithContext(ctx).Model(&model.InventoryCheck{}).
		Where("id = ? AND status = ?", checkID, model.CheckStatusInProgress).
		Updates(map[string]interface{}{
			"status":       model.CheckStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("complete check: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost the race to another terminal transition, or no such check.
		return nil, ErrCheckNotFound
	}

	var chk model.InventoryCheck
	if err := svc.db.WithContext(ctx).First(&chk, checkID).Error; err != nil {
		return nil, fmt.Errorf("reload check: %w", err)
	}

	svc.locks.ReleaseAll(chk.ApparatusID)
	svc.events.Publish(&events.Event{
		Type:        events.TypeCheckCompleted,
		ApparatusID: chk.ApparatusID,
		Payload: events.CheckCompletedPayload{
			CheckID:          chk.ID,
			VerifiedCount:    chk.VerifiedCount,
			TotalItems:       chk.TotalItems,
			IssuesFoundCount: chk.IssuesFoundCount,
		},
	})
	svc.logger.Info("check completed",
		zap.Int64("check_id", chk.ID),
		zap.Int64("apparatus_id", chk.ApparatusID),
		zap.Int("verified", chk.VerifiedCount),
		zap.Int("total", chk.TotalItems),
		zap.Int("issues", chk.IssuesFoundCount))
	return &chk, nil
}

// Abandon transitions the check to ABANDONED with the given reason. It is
// an idempotent no-op on an already-terminal check and ErrCheckNotFound on
// a nonexistent one.
func (svc *Service) Abandon(ctx context.Context, checkID int64, reason string) error {
	now := time.Now()
	res := svc.db.WithContext(ctx).Model(&model.InventoryCheck{}).
		Where("id = ? AND status = ?", checkID, model.CheckStatusInProgress).
		Updates(map[string]interface{}{
			"status":         model.CheckStatusAbandoned,
			"abandoned_at":   now,
			"abandon_reason": reason,
		})
	if res.Error != nil {
		return fmt.Errorf("abandon check: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var chk model.InventoryCheck
		if err := svc.db.WithContext(ctx).First(&chk, checkID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCheckNotFound
			}
			return fmt.Errorf("reload check: %w", err)
		}
		// Already terminal: abandon is idempotent.
		return nil
	}

	var chk model.InventoryCheck
	if err := svc.db.WithContext(ctx).First(&chk, checkID).Error; err != nil {
		return fmt.Errorf("reload check: %w", err)
	}

	svc.locks.ReleaseAll(chk.ApparatusID)
	svc.events.Publish(&events.Event{
		Type:        events.TypeCheckAbandoned,
		ApparatusID: chk.ApparatusID,
		Payload:     events.CheckAbandonedPayload{CheckID: chk.ID, Reason: reason},
	})
	svc.logger.Info("check abandoned",
		zap.Int64("check_id", chk.ID),
		zap.Int64("apparatus_id", chk.ApparatusID),
		zap.String("reason", reason))
	return nil
}

// Resume reopens an AUTO_TIMEOUT-abandoned check for its original checker
// within the resume window. Prior item rows and counters are untouched
// (they were never decremented on abandonment).
func (svc *Service) Resume(ctx context.Context, checkID, userID int64) (*model.InventoryCheck, error) {
	var chk model.InventoryCheck
	if err := svc.db.WithContext(ctx).First(&chk, checkID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCheckNotFound
		}
		return nil, fmt.Errorf("load check: %w", err)
	}

	if chk.Status != model.CheckStatusAbandoned || chk.AbandonReason != model.AbandonReasonAutoTimeout {
		return nil, ErrNotResumable
	}
	if chk.PerformedBy != userID {
		return nil, ErrNotOwner
	}
	if chk.AbandonedAt == nil || time.Since(*chk.AbandonedAt) > svc.cfg.ResumeWindow {
		return nil, ErrResumeWindowExpired
	}

	// resumed_at restarts the staleness clock: a timed-out check always has
	// started_at older than MaxDuration, so without it the next sweep tick
	// would re-abandon the session immediately.
	res := svc.db.WithContext(ctx).Model(&model.InventoryCheck{}).
		Where("id = ? AND status = ? AND abandon_reason = ?",
			checkID, model.CheckStatusAbandoned, model.AbandonReasonAutoTimeout).
		Updates(map[string]interface{}{
			"status":         model.CheckStatusInProgress,
			"resumed_at":     time.Now(),
			"abandoned_at":   nil,
			"abandon_reason": "",
		})
	if res.Error != nil {
		return nil, fmt.Errorf("resume check: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// State changed between our read and the write (a concurrent
		// resume already won, or the check moved on).
		return nil, ErrNotResumable
	}

	if err := svc.db.WithContext(ctx).First(&chk, checkID).Error; err != nil {
		return nil, fmt.Errorf("reload check: %w", err)
	}

	svc.events.Publish(&events.Event{
		Type:        events.TypeCheckResumed,
		ApparatusID: chk.ApparatusID,
		Payload:     events.CheckResumedPayload{CheckID: chk.ID, ResumedBy: userID},
	})
	svc.logger.Info("check resumed",
		zap.Int64("check_id", chk.ID),
		zap.Int64("apparatus_id", chk.ApparatusID),
		zap.Int64("resumed_by", userID))
	return &chk, nil
}

// SweepStale abandons every IN_PROGRESS check older than MaxDuration with
// AUTO_TIMEOUT. Each abandonment goes through the same conditional update
// as user-driven transitions, so a concurrent complete or resume wins or
// loses atomically. Returns the number of checks abandoned.
func (svc *Service) SweepStale(ctx context.Context) int {
	// A resumed check is aged from its resume, not its original start.
	cutoff := time.Now().Add(-svc.cfg.MaxDuration)
	var stale []model.InventoryCheck
	if err := svc.db.WithContext(ctx).
		Where("status = ? AND started_at < ? AND (resumed_at IS NULL OR resumed_at < ?)",
			model.CheckStatusInProgress, cutoff, cutoff).
		Find(&stale).Error; err != nil {
		svc.logger.Error("sweep query failed", zap.Error(err))
		return 0
	}

	swept := 0
	for i := range stale {
		err := svc.Abandon(ctx, stale[i].ID, model.AbandonReasonAutoTimeout)
		if err != nil {
			svc.logger.Warn("sweep abandon failed",
				zap.Int64("check_id", stale[i].ID),
				zap.Error(err))
			continue
		}
		swept++
	}
	if swept > 0 {
		svc.logger.Info("stale checks abandoned", zap.Int("count", swept))
	}
	return swept
}

// ActiveForApparatus returns the IN_PROGRESS check for an apparatus, or
// nil if there is none.
func (svc *Service) ActiveForApparatus(ctx context.Context, apparatusID int64) (*model.InventoryCheck, error) {
	var chk model.InventoryCheck
	err := svc.db.WithContext(ctx).
		Where("apparatus_id = ? AND status = ?", apparatusID, model.CheckStatusInProgress).
		First(&chk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup active check: %w", err)
	}
	return &chk, nil
}

// Get returns a check by id regardless of status.
func (svc *Service) Get(ctx context.Context, checkID int64) (*model.InventoryCheck, error) {
	var chk model.InventoryCheck
	if err := svc.db.WithContext(ctx).First(&chk, checkID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCheckNotFound
		}
		return nil, fmt.Errorf("load check: %w", err)
	}
	return &chk, nil
}

// Items returns all item rows recorded for a check.
func (svc *Service) Items(ctx context.Context, checkID int64) ([]model.InventoryCheckItem, error) {
	var items []model.InventoryCheckItem
	if err := svc.db.WithContext(ctx).
		Where("check_id = ?", checkID).
		Order("verified_at, id").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("load check items: %w", err)
	}
	return items, nil
}

// Progress returns the check plus per-compartment verified/issue tallies.
func (svc *Service) Progress(ctx context.Context, checkID int64) (*Progress, error) {
	chk, err := svc.Get(ctx, checkID)
	if err != nil {
		return nil, err
	}
	items, err := svc.Items(ctx, checkID)
	if err != nil {
		return nil, err
	}

	byComp := make(map[int64]*CompartmentProgress)
	order := make([]int64, 0)
	for i := range items {
		cp, ok := byComp[items[i].CompartmentID]
		if !ok {
			cp = &CompartmentProgress{CompartmentID: items[i].CompartmentID}
			byComp[items[i].CompartmentID] = cp
			order = append(order, items[i].CompartmentID)
		}
		cp.Verified++
		if items[i].IssueID != nil {
			cp.Issues++
		}
	}

	p := &Progress{Check: chk, Compartments: make([]CompartmentProgress, 0, len(order))}
	for _, id := range order {
		p.Compartments = append(p.Compartments, *byComp[id])
	}
	return p, nil
}

// History returns recent checks for an apparatus, newest first.
func (svc *Service) History(ctx context.Context, apparatusID int64, limit int) ([]model.InventoryCheck, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var checks []model.InventoryCheck
	if err := svc.db.WithContext(ctx).
		Where("apparatus_id = ?", apparatusID).
		Order("started_at DESC").
		Limit(limit).
		Find(&checks).Error; err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return checks, nil
}

// ActiveCount returns the number of IN_PROGRESS checks, used by admin
// metrics.
func (svc *Service) ActiveCount(ctx context.Context) (int64, error) {
	var n int64
	err := svc.db.WithContext(ctx).Model(&model.InventoryCheck{}).
		Where("status = ?", model.CheckStatusInProgress).
		Count(&n).Error
	return n, err
}

func validStatus(s model.VerificationStatus) bool {
	switch s {
	case model.VerifyPresent, model.VerifyMissing, model.VerifyPresentDamaged,
		model.VerifyExpired, model.VerifyLowQuantity, model.VerifySkipped:
		return true
	}
	return false
}

func issueDescription(v Verification) string {
	desc := fmt.Sprintf("%s reported during shift inventory check", v.Status)
	if v.Status == model.VerifyLowQuantity && v.QuantityFound != nil && v.QuantityExpected != nil {
		desc = fmt.Sprintf("%s: found %d of %d expected", desc, *v.QuantityFound, *v.QuantityExpected)
	}
	if v.Notes != "" {
		desc += "; " + v.Notes
	}
	return desc
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
