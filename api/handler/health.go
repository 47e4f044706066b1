package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/models"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Degrades status when more than 80% of the job slots are in use.
func Health(jobs *JobStore, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		active := jobs.Active()

		status := "healthy"
		if max := jobs.Max(); max > 0 && active > int(float64(max)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			ActiveJobs: active,
			Version:    Version,
		})
	}
}
