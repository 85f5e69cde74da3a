package handlers

import (
	"net/http"
	"time"

	"mediafetch/config"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	cfg     *config.Config
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(cfg *config.Config) *HealthHandler {
	return &HealthHandler{cfg: cfg, started: time.Now()}
}

// HealthCheck returns the health status of the service
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "mediafetch",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
	})
}

// APIStatus returns the effective runtime settings
func (h *HealthHandler) APIStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":           "Mediafetch API is running",
		"download_location": h.cfg.DownloadDir,
		"artifact_expiry":   h.cfg.ArtifactExpiry().String(),
		"job_timeout":       h.cfg.JobTimeout().String(),
		"max_workers":       h.cfg.MaxWorkers,
		"job_store":         h.cfg.StoreDriver,
		"uptime_seconds":    int64(time.Since(h.started).Seconds()),
	})
}
