package controllers

import (
	"elaro/models"
	"elaro/services"
	"elaro/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type PreferenceController struct {
	preferenceService *services.PreferenceService
}

func NewPreferenceController(preferenceService *services.PreferenceService) *PreferenceController {
	return &PreferenceController{
		preferenceService: preferenceService,
	}
}

// Get returns the user's notification preferences
// @Summary Get preferences
// @Tags Preferences
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.NotificationPreference}
// @Router /preferences [get]
func (pc *PreferenceController) Get(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	prefs, err := pc.preferenceService.Get(c.Request.Context(), userID)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Preferences retrieved", prefs)
}

// Update applies a partial preference update
// @Summary Update preferences
// @Tags Preferences
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body models.UpdatePreferencesRequest true "Partial preference update"
// @Success 200 {object} models.APIResponse{data=models.NotificationPreference}
// @Failure 400 {object} models.APIResponse
// @Router /preferences [put]
func (pc *PreferenceController) Update(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	var req models.UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	prefs, err := pc.preferenceService.Update(c.Request.Context(), userID, req)
	if err != nil {
		logrus.Warnf("Preference update rejected for user %s: %v", userID, err)
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Preferences updated", prefs)
}

// Reset restores default preferences
// @Summary Reset preferences
// @Tags Preferences
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.NotificationPreference}
// @Router /preferences/reset [post]
func (pc *PreferenceController) Reset(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	prefs, err := pc.preferenceService.Reset(c.Request.Context(), userID)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Preferences reset to defaults", prefs)
}
