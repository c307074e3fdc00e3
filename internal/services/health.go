package services

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hookhub/relay/internal/worker"
)

// HealthHandler creates a health check handler that reports worker
// supervisor health.
func HealthHandler(supervisor *worker.WorkerSupervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		tracker := supervisor.GetHealthTracker()
		status := tracker.GetStatus()
		if tracker.IsHealthy() {
			c.JSON(http.StatusOK, status)
		} else {
			c.JSON(http.StatusServiceUnavailable, status)
		}
	}
}
