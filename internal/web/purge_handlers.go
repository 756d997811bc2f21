// internal/web/purge_handlers.go - preference housekeeping and database maintenance
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sitemonitor/internal/database"
)

const maintenanceTimeout = 30 * time.Second

func (s *Server) setupPurgeRoutes(api *gin.RouterGroup) {
	prefs := api.Group("/preferences")
	{
		prefs.GET("", s.getPreferences)
		prefs.POST("/purge", s.purgePreferences)
	}

	admin := api.Group("/admin")
	{
		admin.GET("/stats", s.getDatabaseStats)
		admin.POST("/compact", s.compactDatabase)
	}
}

// GET /api/preferences
func (s *Server) getPreferences(c *gin.Context) {
	prefs, err := s.store.GetPreferences(c.Request.Context())
	if err != nil {
		logger(c).WithError(err).Error("Failed to get preferences")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get preferences"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": database.SerializeAll(prefs), "count": len(prefs)})
}

// POST /api/preferences/purge
func (s *Server) purgePreferences(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), maintenanceTimeout)
	defer cancel()

	purged, err := s.janitor.PurgeStalePreferences(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to purge stale preferences")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to purge stale preferences"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Stale preferences purged successfully",
		"purged":    purged,
		"timestamp": time.Now(),
	})
}

// GET /api/admin/stats
func (s *Server) getDatabaseStats(c *gin.Context) {
	stats, err := s.store.GetDatabaseStats(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to get database stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get database stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// POST /api/admin/compact
func (s *Server) compactDatabase(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), maintenanceTimeout)
	defer cancel()

	start := time.Now()
	if err := s.store.CompactDatabase(ctx); err != nil {
		logrus.WithError(err).Error("Failed to compact database")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compact database"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Database compacted successfully",
		"duration": time.Since(start).String(),
	})
}
