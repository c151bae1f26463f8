package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stationops/firecheck/check"
	"github.com/stationops/firecheck/crew"
	"github.com/stationops/firecheck/model"
	"github.com/stationops/firecheck/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db     *gorm.DB
	cm     *crew.Manager
	svc    *check.Service
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	db *gorm.DB,
	cm *crew.Manager,
	svc *check.Service,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{db: db, cm: cm, svc: svc, sched: sched, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	activeChecks, err := h.svc.ActiveCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"online_crew":     h.cm.Count(),
		"active_checks":   activeChecks,
		"scheduler_tasks": len(h.sched.Tasks()),
	})
}

// ListCrew returns a snapshot of all connected crew sessions.
// GET /api/admin/crew
func (h *AdminHandler) ListCrew(c *gin.Context) {
	sessions := h.cm.All()
	type crewInfo struct {
		AccountID   int64  `json:"account_id"`
		DisplayName string `json:"display_name"`
		StationID   int64  `json:"station_id"`
		Role        string `json:"role"`
	}
	result := make([]crewInfo, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, crewInfo{
			AccountID:   s.AccountID,
			DisplayName: s.DisplayName,
			StationID:   s.StationID,
			Role:        s.Role,
		})
	}
	c.JSON(http.StatusOK, gin.H{"crew": result, "count": len(result)})
}

// KickCrew forcibly disconnects a crew member by account ID.
// POST /api/admin/kick/:id
func (h *AdminHandler) KickCrew(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	s := h.cm.Get(accountID)
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "crew member not online"})
		return
	}
	s.Close()
	h.logger.Info("admin kicked crew member", zap.Int64("account_id", accountID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// BanAccount disables or re-enables an account.
// POST /api/admin/accounts/:id/ban
func (h *AdminHandler) BanAccount(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Ban bool `json:"ban"`
	}
	_ = c.ShouldBindJSON(&req)

	status := 1
	if req.Ban {
		status = 0
	}
	result := h.db.Model(&model.Account{}).Where("id = ?", accountID).Update("status", status)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	// Kick the member if currently online.
	if req.Ban {
		if s := h.cm.Get(accountID); s != nil {
			s.Close()
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// SweepNow runs the stale-check sweep immediately instead of waiting for
// the next ticker pass.
// POST /api/admin/sweep
func (h *AdminHandler) SweepNow(c *gin.Context) {
	swept := h.svc.SweepStale(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"swept": swept})
}

// ListSchedulerTasks returns the registered background tasks and their
// intervals.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
