package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	apirest "github.com/stationops/firecheck/api/rest"
	"github.com/stationops/firecheck/api/sse"
	apows "github.com/stationops/firecheck/api/ws"
	"github.com/stationops/firecheck/audit"
	"github.com/stationops/firecheck/cache"
	"github.com/stationops/firecheck/catalog"
	"github.com/stationops/firecheck/check"
	"github.com/stationops/firecheck/config"
	"github.com/stationops/firecheck/crew"
	dbadapter "github.com/stationops/firecheck/db"
	"github.com/stationops/firecheck/events"
	"github.com/stationops/firecheck/lock"
	mw "github.com/stationops/firecheck/middleware"
	"github.com/stationops/firecheck/model"
	"github.com/stationops/firecheck/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Core services ----
	bus := events.NewBroadcaster(pubsub, cfg.Check.EventBuf, logger)
	locks := lock.NewManager(bus, logger)
	cat := catalog.NewReader(db)
	checkSvc := check.NewService(db, cat, locks, bus, c, cfg.Check, logger)
	cm := crew.NewManager(logger)
	defer cm.CloseAll()

	// ---- Periodic Scheduler Tasks ----
	sched.AddTicker("check_sweeper", cfg.Check.SweepInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Check.SweepInterval)
		defer cancel()
		if n := checkSvc.SweepStale(ctx); n > 0 {
			logger.Info("swept stale checks", zap.Int("count", n))
		}
	})

	// ---- WS Router ----
	wsRouter := apows.NewRouter(logger)
	checkH := apows.NewCheckHandlers(checkSvc, locks, bus, logger)
	checkH.RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	appH := apirest.NewApparatusHandler(db, cat, locks)
	restCheckH := apirest.NewCheckHandler(checkSvc, auditSvc, logger)
	issueH := apirest.NewIssueHandler(db)
	adminH := apirest.NewAdminHandler(db, cm, checkSvc, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		appG := api.Group("/apparatus")
		appG.Use(mw.Auth(cfg.Security, c))
		appG.GET("", appH.List)
		appG.GET("/:id", appH.Details)
		appG.POST("/:id/checks", restCheckH.Start)
		appG.GET("/:id/checks", restCheckH.History)
		appG.GET("/:id/checks/active", restCheckH.Active)

		checksG := api.Group("/checks")
		checksG.Use(mw.Auth(cfg.Security, c))
		checksG.POST("/:id/items", restCheckH.RecordItem)
		checksG.GET("/:id/items", restCheckH.Items)
		checksG.GET("/:id/progress", restCheckH.Progress)
		checksG.POST("/:id/complete", restCheckH.Complete)
		checksG.POST("/:id/abandon", restCheckH.Abandon)
		checksG.POST("/:id/resume", restCheckH.Resume)

		issuesG := api.Group("/issues")
		issuesG.Use(mw.Auth(cfg.Security, c))
		issuesG.GET("", issueH.List)

		adminG := api.Group("/admin")
		if len(cfg.Server.AdminIPs) > 0 {
			adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs))
		}
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/crew", adminH.ListCrew)
		adminG.POST("/kick/:id", adminH.KickCrew)
		adminG.POST("/accounts/:id/ban", adminH.BanAccount)
		adminG.POST("/sweep", adminH.SweepNow)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	// ---- WebSocket ----
	wsH := apows.NewHandler(c, cfg.Security, cm, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
