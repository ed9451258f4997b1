// Package root holds the probe handlers
package root

import (
	"net/http"
	"time"

	"followpro/api/internal"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Heartbeat answers liveness probes without touching any backend
func Heartbeat(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Health pings the store and reports the result
func Health(c *gin.Context, d *internal.Deps) {
	now := time.Now().UTC().Format(time.RFC3339)

	if err := d.Users.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "ERROR",
			"timestamp": now,
			"message":   "Database connection failed",
			"requestID": c.GetString("requestID"),
		})

		zap.L().Error("Health check failed", zap.Error(err), zap.String("requestID", c.GetString("requestID")))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": now,
		"message":   "Server is running healthy",
		"database":  "Connected",
	})
}
