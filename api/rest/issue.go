package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stationops/firecheck/model"
	"gorm.io/gorm"
)

// IssueHandler lists tracked equipment issues. Issues are created by the
// check service; resolution workflow lives outside this server.
type IssueHandler struct {
	db *gorm.DB
}

// NewIssueHandler creates an IssueHandler.
func NewIssueHandler(db *gorm.DB) *IssueHandler {
	return &IssueHandler{db: db}
}

// List handles GET /api/issues?apparatus_id=&status=&limit=.
func (h *IssueHandler) List(c *gin.Context) {
	q := h.db.Model(&model.Issue{})

	if s := c.Query("apparatus_id"); s != "" {
		apparatusID, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid apparatus_id"})
			return
		}
		q = q.Where("apparatus_id = ?", apparatusID)
	}
	if status := c.Query("status"); status != "" {
		if status != model.IssueStatusOpen && status != model.IssueStatusResolved {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		q = q.Where("status = ?", status)
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var issues []model.Issue
	if err := q.Order("created_at DESC").Limit(limit).Find(&issues).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"issues": issues, "count": len(issues)})
}
