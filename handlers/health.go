package handlers

import (
	"net/http"

	"travelpay/utils"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports the last dependency snapshot taken by the health monitor.
func HealthHandler(c *gin.Context) {
	status := utils.GetHealthStatus()
	if !status.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "health": status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "health": status})
}
