package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stationops/firecheck/cache"
	"github.com/stationops/firecheck/config"
)

const (
	AccountIDKey   = "account_id"
	StationIDKey   = "station_id"
	DisplayNameKey = "display_name"
	RoleKey        = "role"
)

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// Check session still valid in cache.
		sessionKey := "session:" + tokenStr
		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, sessionKey)
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		ctx.Set(AccountIDKey, claims.AccountID)
		ctx.Set(StationIDKey, claims.StationID)
		ctx.Set(DisplayNameKey, claims.DisplayName)
		ctx.Set(RoleKey, claims.Role)
		ctx.Next()
	}
}

// GetAccountID retrieves the authenticated account ID from the Gin context.
func GetAccountID(c *gin.Context) int64 {
	if v, exists := c.Get(AccountIDKey); exists {
		return v.(int64)
	}
	return 0
}

// GetStationID retrieves the authenticated user's station ID.
func GetStationID(c *gin.Context) int64 {
	if v, exists := c.Get(StationIDKey); exists {
		return v.(int64)
	}
	return 0
}

// GetDisplayName retrieves the authenticated user's display name.
func GetDisplayName(c *gin.Context) string {
	if v, exists := c.Get(DisplayNameKey); exists {
		return v.(string)
	}
	return ""
}

// GetRole retrieves the authenticated user's role.
func GetRole(c *gin.Context) string {
	if v, exists := c.Get(RoleKey); exists {
		return v.(string)
	}
	return ""
}
