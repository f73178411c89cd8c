// routes/history.go
package routes

import (
	"elaro/controllers"

	"github.com/gin-gonic/gin"
)

// SetupHistoryRoutes configures the delivery history surface.
func SetupHistoryRoutes(router *gin.RouterGroup, historyController *controllers.HistoryController) {
	history := router.Group("/history")

	history.GET("", historyController.List)
	history.PUT("/:id/read", historyController.MarkRead)
	history.PUT("/read-all", historyController.MarkAllRead)
	history.DELETE("/:id", historyController.Delete)
	history.POST("/sync", historyController.Sync)
}
