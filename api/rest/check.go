package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stationops/firecheck/audit"
	"github.com/stationops/firecheck/catalog"
	"github.com/stationops/firecheck/check"
	mw "github.com/stationops/firecheck/middleware"
	"github.com/stationops/firecheck/model"
	"go.uber.org/zap"
)

// CheckHandler handles check-session REST endpoints.
type CheckHandler struct {
	svc    *check.Service
	audit  *audit.Service
	logger *zap.Logger
}

// NewCheckHandler creates a CheckHandler. aud may be nil to disable audit
// logging (tests).
func NewCheckHandler(svc *check.Service, aud *audit.Service, logger *zap.Logger) *CheckHandler {
	return &CheckHandler{svc: svc, audit: aud, logger: logger}
}

// logAudit records a check lifecycle action. Best-effort and async.
func (h *CheckHandler) logAudit(c *gin.Context, action string, apparatusID int64, checkID *int64, auditErr error) {
	if h.audit == nil {
		return
	}
	accountID := mw.GetAccountID(c)
	errMsg := ""
	if auditErr != nil {
		errMsg = auditErr.Error()
	}
	h.audit.Log(audit.Entry{
		TraceID:     mw.GetTraceID(c),
		AccountID:   &accountID,
		UserName:    mw.GetDisplayName(c),
		Action:      action,
		ApparatusID: apparatusID,
		CheckID:     checkID,
		Error:       errMsg,
		IP:          c.ClientIP(),
	})
}

// Start handles POST /api/apparatus/:id/checks.
func (h *CheckHandler) Start(c *gin.Context) {
	apparatusID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	chk, err := h.svc.Start(c.Request.Context(), apparatusID, mw.GetStationID(c), mw.GetAccountID(c), mw.GetDisplayName(c))
	if err != nil {
		h.logAudit(c, "check_start", apparatusID, nil, err)
		h.writeError(c, err)
		return
	}
	h.logAudit(c, "check_start", apparatusID, &chk.ID, nil)
	c.JSON(http.StatusCreated, gin.H{"check": chk})
}

// Active handles GET /api/apparatus/:id/checks/active.
func (h *CheckHandler) Active(c *gin.Context) {
	apparatusID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	chk, err := h.svc.ActiveForApparatus(c.Request.Context(), apparatusID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if chk == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active check"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"check": chk})
}

// History handles GET /api/apparatus/:id/checks?limit=.
func (h *CheckHandler) History(c *gin.Context) {
	apparatusID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	checks, err := h.svc.History(c.Request.Context(), apparatusID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checks": checks, "count": len(checks)})
}

type recordItemRequest struct {
	CompartmentID     int64  `json:"compartment_id" binding:"required"`
	EquipmentItemID   *int64 `json:"equipment_item_id"`
	ConsumableStockID *int64 `json:"consumable_stock_id"`
	ManifestEntryID   *int64 `json:"manifest_entry_id"`
	Status            string `json:"status" binding:"required"`
	QuantityFound     *int   `json:"quantity_found"`
	QuantityExpected  *int   `json:"quantity_expected"`
	Notes             string `json:"notes" binding:"max=2000"`
}

// RecordItem handles POST /api/checks/:id/items.
func (h *CheckHandler) RecordItem(c *gin.Context) {
	checkID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req recordItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var target check.Target
	switch {
	case req.EquipmentItemID != nil && req.ConsumableStockID == nil:
		target = check.EquipmentTarget(*req.EquipmentItemID)
	case req.ConsumableStockID != nil && req.EquipmentItemID == nil:
		target = check.ConsumableTarget(*req.ConsumableStockID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": check.ErrInvalidTarget.Error()})
		return
	}

	item, err := h.svc.RecordVerification(c.Request.Context(), checkID, check.Verification{
		CompartmentID:    req.CompartmentID,
		Target:           target,
		Status:           req.Status,
		Notes:            req.Notes,
		QuantityFound:    req.QuantityFound,
		QuantityExpected: req.QuantityExpected,
		ManifestEntryID:  req.ManifestEntryID,
		VerifiedBy:       mw.GetAccountID(c),
		VerifiedByName:   mw.GetDisplayName(c),
	})
	if err != nil {
		h.logAudit(c, "check_record_item", 0, &checkID, err)
		h.writeError(c, err)
		return
	}
	h.logAudit(c, "check_record_item", 0, &checkID, nil)
	c.JSON(http.StatusCreated, gin.H{"item": item})
}

// Complete handles POST /api/checks/:id/complete.
func (h *CheckHandler) Complete(c *gin.Context) {
	checkID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	chk, err := h.svc.Complete(c.Request.Context(), checkID)
	if err != nil {
		h.logAudit(c, "check_complete", 0, &checkID, err)
		h.writeError(c, err)
		return
	}
	h.logAudit(c, "check_complete", chk.ApparatusID, &checkID, nil)
	c.JSON(http.StatusOK, gin.H{"check": chk})
}

// Abandon handles POST /api/checks/:id/abandon.
func (h *CheckHandler) Abandon(c *gin.Context) {
	checkID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	reason := model.AbandonReasonUser
	if mw.GetRole(c) == model.RoleAdmin || mw.GetRole(c) == model.RoleOfficer {
		var req struct {
			Admin bool `json:"admin"`
		}
		_ = c.ShouldBindJSON(&req)
		if req.Admin {
			reason = model.AbandonReasonAdmin
		}
	}

	if err := h.svc.Abandon(c.Request.Context(), checkID, reason); err != nil {
		h.logAudit(c, "check_abandon", 0, &checkID, err)
		h.writeError(c, err)
		return
	}
	h.logAudit(c, "check_abandon", 0, &checkID, nil)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Resume handles POST /api/checks/:id/resume.
func (h *CheckHandler) Resume(c *gin.Context) {
	checkID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	chk, err := h.svc.Resume(c.Request.Context(), checkID, mw.GetAccountID(c))
	if err != nil {
		h.logAudit(c, "check_resume", 0, &checkID, err)
		h.writeError(c, err)
		return
	}
	h.logAudit(c, "check_resume", chk.ApparatusID, &checkID, nil)
	c.JSON(http.StatusOK, gin.H{"check": chk})
}

// Progress handles GET /api/checks/:id/progress.
func (h *CheckHandler) Progress(c *gin.Context) {
	checkID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	p, err := h.svc.Progress(c.Request.Context(), checkID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Items handles GET /api/checks/:id/items.
func (h *CheckHandler) Items(c *gin.Context) {
	checkID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if _, err := h.svc.Get(c.Request.Context(), checkID); err != nil {
		h.writeError(c, err)
		return
	}
	items, err := h.svc.Items(c.Request.Context(), checkID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// writeError maps service errors to HTTP statuses.
func (h *CheckHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, check.ErrCheckInProgress),
		errors.Is(err, check.ErrDuplicateVerification),
		errors.Is(err, check.ErrNotResumable),
		errors.Is(err, check.ErrStartContended):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, check.ErrCheckNotFound),
		errors.Is(err, catalog.ErrApparatusNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, check.ErrInvalidTarget),
		errors.Is(err, check.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, check.ErrResumeWindowExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, check.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		h.logger.Error("check handler error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
