// routes/report.go
package routes

import (
	"elaro/controllers"

	"github.com/gin-gonic/gin"
)

// SetupReportRoutes configures the admin report surface.
func SetupReportRoutes(router *gin.RouterGroup, reportController *controllers.ReportController) {
	reports := router.Group("/reports")

	reports.POST("/run", reportController.Run)
	reports.POST("/retry", reportController.Retry)
	reports.GET("/:userId/:weekStart", reportController.Get)
}
