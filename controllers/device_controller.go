package controllers

import (
	"elaro/models"
	"elaro/repositories"
	"elaro/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
)

type DeviceController struct {
	userRepo  *repositories.UserRepository
	validator *utils.ValidationService
}

func NewDeviceController(userRepo *repositories.UserRepository) *DeviceController {
	return &DeviceController{
		userRepo:  userRepo,
		validator: utils.NewValidationService(),
	}
}

// Register stores the push token for the authenticated user's device
// @Summary Register device
// @Tags Devices
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body models.RegisterDeviceRequest true "Device registration"
// @Success 200 {object} models.APIResponse
// @Router /devices/register [post]
func (dc *DeviceController) Register(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	var req models.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if validationErrors := dc.validator.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	err := dc.userRepo.RegisterDevice(c.Request.Context(), userID, req.DeviceToken, req.Platform, req.Timezone)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			utils.NotFoundResponse(c, "User")
			return
		}
		logrus.Errorf("Device registration failed for user %s: %v", userID, err)
		utils.InternalServerErrorResponse(c, "Failed to register device")
		return
	}

	utils.SuccessResponse(c, "Device registered", nil)
}
