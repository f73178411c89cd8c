package controllers

import (
	"context"
	"net/http"
	"time"

	"elaro/database"
	"elaro/utils"
	"elaro/websocket"
	"elaro/workers"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

const Version = "1.3.0"

type HealthController struct {
	redisClient    *redis.Client
	hub            *websocket.Hub
	deliveryWorker *workers.DeliveryWorker
	startTime      time.Time
}

func NewHealthController(redisClient *redis.Client, hub *websocket.Hub, deliveryWorker *workers.DeliveryWorker) *HealthController {
	return &HealthController{
		redisClient:    redisClient,
		hub:            hub,
		deliveryWorker: deliveryWorker,
		startTime:      time.Now(),
	}
}

// Health reports service dependency status
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /health [get]
func (hc *HealthController) Health(c *gin.Context) {
	services := map[string]string{
		"database": "unhealthy",
		"redis":    "unhealthy",
	}

	dbHealth := database.HealthCheck()
	if status, ok := dbHealth["status"].(string); ok {
		services["database"] = status
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := hc.redisClient.Ping(ctx).Err(); err == nil {
		services["redis"] = "healthy"
	}

	uptime := time.Since(hc.startTime).Round(time.Second).String()
	response := utils.HealthCheckResponse(services, Version, uptime)

	statusCode := http.StatusOK
	if response.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// VersionInfo returns the build version
// @Summary Version
// @Tags Health
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /version [get]
func (hc *HealthController) VersionInfo(c *gin.Context) {
	utils.SuccessResponse(c, "Version retrieved", gin.H{
		"version": Version,
		"uptime":  time.Since(hc.startTime).Round(time.Second).String(),
	})
}

// Stats returns operational counters (admin only)
// @Summary Runtime stats
// @Tags Health
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /admin/stats [get]
func (hc *HealthController) Stats(c *gin.Context) {
	workerStats := hc.deliveryWorker.Stats()
	hubStats := hc.hub.Stats()

	utils.SuccessResponse(c, "Stats retrieved", gin.H{
		"delivery": gin.H{
			"processed":   workerStats.JobsProcessed,
			"failed":      workerStats.JobsFailed,
			"deferred":    workerStats.JobsDeferred,
			"retried":     workerStats.JobsRetried,
			"queueLength": workerStats.QueueLength,
			"uptime":      time.Since(workerStats.StartTime).Round(time.Second).String(),
		},
		"websocket": gin.H{
			"activeConnections": hubStats.ActiveConnections,
			"totalConnections":  hubStats.TotalConnections,
			"messagesSent":      hubStats.MessagesSent,
		},
	})
}
