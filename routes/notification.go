// routes/notification.go
package routes

import (
	"elaro/controllers"

	"github.com/gin-gonic/gin"
)

// SetupNotificationRoutes configures the scheduling surface.
func SetupNotificationRoutes(router *gin.RouterGroup, notificationController *controllers.NotificationController) {
	notifications := router.Group("/notifications")

	notifications.POST("/schedule", notificationController.Schedule)
	notifications.POST("/batch", notificationController.Batch)
	notifications.POST("/:id/reschedule", notificationController.Reschedule)
	notifications.GET("/scheduled", notificationController.ListScheduled)
	notifications.DELETE("/:id", notificationController.Cancel)
	notifications.DELETE("", notificationController.CancelAll)
}
