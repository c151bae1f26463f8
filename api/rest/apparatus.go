package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stationops/firecheck/catalog"
	"github.com/stationops/firecheck/lock"
	"github.com/stationops/firecheck/model"
	"gorm.io/gorm"
)

// ApparatusHandler serves the read-only apparatus catalog.
type ApparatusHandler struct {
	db      *gorm.DB
	catalog *catalog.Reader
	locks   *lock.Manager
}

// NewApparatusHandler creates an ApparatusHandler.
func NewApparatusHandler(db *gorm.DB, cat *catalog.Reader, locks *lock.Manager) *ApparatusHandler {
	return &ApparatusHandler{db: db, catalog: cat, locks: locks}
}

// List returns all active apparatus, optionally filtered by station.
// GET /api/apparatus?station_id=
func (h *ApparatusHandler) List(c *gin.Context) {
	q := h.db.Where("active = ?", true)
	if s := c.Query("station_id"); s != "" {
		stationID, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid station_id"})
			return
		}
		q = q.Where("station_id = ?", stationID)
	}

	var apparatus []model.Apparatus
	if err := q.Order("code").Find(&apparatus).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"apparatus": apparatus, "count": len(apparatus)})
}

// Details returns one apparatus with its compartments, expected items and
// the current compartment holds.
// GET /api/apparatus/:id
func (h *ApparatusHandler) Details(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	details, err := h.catalog.ApparatusDetails(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrApparatusNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "apparatus not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"apparatus":    details.Apparatus,
		"compartments": details.Compartments,
		"total_items":  details.TotalItems,
		"holds":        h.locks.Holds(id),
	})
}
