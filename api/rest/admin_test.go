package rest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stationops/firecheck/api/rest"
	"github.com/stationops/firecheck/catalog"
	"github.com/stationops/firecheck/check"
	"github.com/stationops/firecheck/config"
	"github.com/stationops/firecheck/crew"
	"github.com/stationops/firecheck/events"
	"github.com/stationops/firecheck/lock"
	"github.com/stationops/firecheck/model"
	"github.com/stationops/firecheck/scheduler"
	"github.com/stationops/firecheck/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testAdminKey = "test-admin-key"

func newAdminRouter(t *testing.T) (*gin.Engine, *gorm.DB, *crew.Manager, *testutil.Fixture, *check.Service, *scheduler.Scheduler) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	fx := testutil.SeedApparatus(t, db)
	c, _ := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	bus := events.NewBroadcaster(nil, 16, logger)
	locks := lock.NewManager(bus, logger)
	svc := check.NewService(db, catalog.NewReader(db), locks, bus, c, config.CheckConfig{
		MaxDuration:  time.Hour,
		ResumeWindow: 30 * time.Minute,
	}, logger)
	cm := crew.NewManager(logger)
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	h := rest.NewAdminHandler(db, cm, svc, sched, logger)
	r := gin.New()
	admin := r.Group("/api/admin", rest.AdminAuth(testAdminKey))
	admin.GET("/metrics", h.Metrics)
	admin.GET("/crew", h.ListCrew)
	admin.POST("/kick/:id", h.KickCrew)
	admin.POST("/accounts/:id/ban", h.BanAccount)
	admin.POST("/sweep", h.SweepNow)
	admin.GET("/scheduler", h.ListSchedulerTasks)
	return r, db, cm, fx, svc, sched
}

func adminReq(r *gin.Engine, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminAuth(t *testing.T) {
	r, _, _, _, _, _ := newAdminRouter(t)

	w := adminReq(r, http.MethodGet, "/api/admin/metrics", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = adminReq(r, http.MethodGet, "/api/admin/metrics", "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = adminReq(r, http.MethodGet, "/api/admin/metrics", testAdminKey)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuth_EmptyKeyDisablesRoutes(t *testing.T) {
	r := gin.New()
	r.GET("/api/admin/metrics", rest.AdminAuth(""), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})
	w := adminReq(r, http.MethodGet, "/api/admin/metrics", "anything")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminMetricsAndSweep(t *testing.T) {
	r, db, _, fx, svc, _ := newAdminRouter(t)

	chk, err := svc.Start(context.Background(), fx.Apparatus.ID, fx.Station.ID, 10, "Kim Reyes")
	require.NoError(t, err)

	w := adminReq(r, http.MethodGet, "/api/admin/metrics", testAdminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var metrics struct {
		OnlineCrew   int   `json:"online_crew"`
		ActiveChecks int64 `json:"active_checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
	assert.Equal(t, 0, metrics.OnlineCrew)
	assert.Equal(t, int64(1), metrics.ActiveChecks)

	// Backdate and sweep through the admin endpoint.
	require.NoError(t, db.Model(&model.InventoryCheck{}).
		Where("id = ?", chk.ID).
		Update("started_at", time.Now().Add(-2*time.Hour)).Error)

	w = adminReq(r, http.MethodPost, "/api/admin/sweep", testAdminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var sweep struct {
		Swept int `json:"swept"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sweep))
	assert.Equal(t, 1, sweep.Swept)

	got, err := svc.Get(context.Background(), chk.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AbandonReasonAutoTimeout, got.AbandonReason)
}

func TestAdminCrewAndKick(t *testing.T) {
	r, _, cm, _, _, _ := newAdminRouter(t)

	sess := &crew.Session{
		AccountID:   10,
		DisplayName: "Kim Reyes",
		SendChan:    make(chan []byte, 8),
		Done:        make(chan struct{}),
	}
	cm.Register(sess)

	w := adminReq(r, http.MethodGet, "/api/admin/crew", testAdminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var crewResp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &crewResp))
	assert.Equal(t, 1, crewResp.Count)

	w = adminReq(r, http.MethodPost, "/api/admin/kick/10", testAdminKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sess.IsClosed())

	w = adminReq(r, http.MethodPost, "/api/admin/kick/999", testAdminKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminListSchedulerTasks(t *testing.T) {
	r, _, _, _, _, sched := newAdminRouter(t)
	sched.AddTicker("check_sweeper", 5*time.Minute, func() {})

	w := adminReq(r, http.MethodGet, "/api/admin/scheduler", testAdminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Tasks []scheduler.TaskInfo `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, "check_sweeper", resp.Tasks[0].Name)
	assert.Equal(t, 5*time.Minute, resp.Tasks[0].Interval)
}

func TestAdminBanAccount(t *testing.T) {
	r, db, _, _, _, _ := newAdminRouter(t)

	acc := &model.Account{Username: "kreyes", PasswordHash: "x", DisplayName: "Kim Reyes"}
	require.NoError(t, db.Create(acc).Error)

	// Empty body defaults to ban=false → status stays active.
	w := adminReq(r, http.MethodPost, fmt.Sprintf("/api/admin/accounts/%d/ban", acc.ID), testAdminKey)
	require.Equal(t, http.StatusOK, w.Code)

	var got model.Account
	require.NoError(t, db.First(&got, acc.ID).Error)
	assert.Equal(t, 1, got.Status)

	w = adminReq(r, http.MethodPost, "/api/admin/accounts/99999/ban", testAdminKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
