// routes/preference.go
package routes

import (
	"elaro/controllers"

	"github.com/gin-gonic/gin"
)

// SetupPreferenceRoutes configures the preference surface.
func SetupPreferenceRoutes(router *gin.RouterGroup, preferenceController *controllers.PreferenceController) {
	preferences := router.Group("/preferences")

	preferences.GET("", preferenceController.Get)
	preferences.PUT("", preferenceController.Update)
	preferences.POST("/reset", preferenceController.Reset)
}
