package controllers

import (
	"strconv"

	"elaro/models"
	"elaro/services"
	"elaro/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationController struct {
	schedulingService *services.SchedulingService
	deliveryService   *services.DeliveryService
	pushService       *services.PushService
	validator         *utils.ValidationService
}

func NewNotificationController(
	schedulingService *services.SchedulingService,
	deliveryService *services.DeliveryService,
	pushService *services.PushService,
) *NotificationController {
	return &NotificationController{
		schedulingService: schedulingService,
		deliveryService:   deliveryService,
		pushService:       pushService,
		validator:         utils.NewValidationService(),
	}
}

// Schedule queues a notification intent with smart timing
// @Summary Schedule notification
// @Description Schedule a notification for the authenticated user with smart timing
// @Tags Notifications
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body models.ScheduleNotificationRequest true "Notification intent"
// @Success 202 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /notifications/schedule [post]
func (nc *NotificationController) Schedule(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	var req models.ScheduleNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if validationErrors := nc.validator.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	intent, err := intentFromRequest(userID, req)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID")
		return
	}

	if err := nc.schedulingService.ScheduleWithSmartTiming(c.Request.Context(), intent, services.ScheduleOptions{}); err != nil {
		logrus.Errorf("Schedule notification failed: %v", err)
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.AcceptedResponse(c, "Notification scheduled", gin.H{
		"notificationId": intent.ID.Hex(),
		"scheduledFor":   intent.ScheduledFor,
	})
}

// Batch schedules a set of intents, combining per type when the user prefers
// summaries
// @Summary Batch notifications
// @Tags Notifications
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body models.BatchNotificationsRequest true "Notification intents"
// @Success 202 {object} models.APIResponse
// @Router /notifications/batch [post]
func (nc *NotificationController) Batch(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	var req models.BatchNotificationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if validationErrors := nc.validator.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	intents := make([]*models.Notification, 0, len(req.Intents))
	for _, item := range req.Intents {
		intent, err := intentFromRequest(userID, item)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid user ID")
			return
		}
		intents = append(intents, intent)
	}

	if err := nc.schedulingService.BatchNotifications(c.Request.Context(), userID, intents); err != nil {
		logrus.Errorf("Batch notifications failed: %v", err)
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.AcceptedResponse(c, "Notifications scheduled", gin.H{"count": len(intents)})
}

// Reschedule moves a pending notification
// @Summary Reschedule notification
// @Tags Notifications
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Notification ID"
// @Param request body models.RescheduleNotificationRequest true "Reschedule reason"
// @Success 200 {object} models.APIResponse{data=models.Notification}
// @Router /notifications/{id}/reschedule [post]
func (nc *NotificationController) Reschedule(c *gin.Context) {
	var req models.RescheduleNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if validationErrors := nc.validator.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	notification, err := nc.schedulingService.HandleRescheduling(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Notification rescheduled", notification)
}

// ListScheduled pages the user's pending notifications
// @Summary List scheduled notifications
// @Tags Notifications
// @Security BearerAuth
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Page size" default(20)
// @Param type query string false "Notification type filter"
// @Success 200 {object} models.APIResponse{data=[]models.Notification}
// @Router /notifications/scheduled [get]
func (nc *NotificationController) ListScheduled(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	page = utils.ClampInt(page, 1, 10000)
	pageSize = utils.ClampInt(pageSize, 1, 100)

	req := models.GetScheduledRequest{
		UserID:   userID,
		Page:     page,
		PageSize: pageSize,
		Type:     c.Query("type"),
	}

	notifications, total, err := nc.deliveryService.ListScheduled(c.Request.Context(), req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	meta := utils.CreatePaginationMeta(page, pageSize, total)
	utils.SuccessResponseWithMeta(c, "Scheduled notifications retrieved", notifications, meta)
}

// Cancel cancels one pending notification
// @Summary Cancel notification
// @Tags Notifications
// @Security BearerAuth
// @Param id path string true "Notification ID"
// @Success 200 {object} models.APIResponse
// @Router /notifications/{id} [delete]
func (nc *NotificationController) Cancel(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	if err := nc.deliveryService.Cancel(c.Request.Context(), c.Param("id"), userID); err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Notification cancelled", nil)
}

// CancelAll cancels every pending notification for the user
// @Summary Cancel all notifications
// @Tags Notifications
// @Security BearerAuth
// @Success 200 {object} models.APIResponse
// @Router /notifications [delete]
func (nc *NotificationController) CancelAll(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	count, err := nc.deliveryService.CancelAll(c.Request.Context(), userID)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Notifications cancelled", gin.H{"cancelled": count})
}

// SendDirect pushes immediately to a set of users (admin only)
// @Summary Direct send
// @Tags Notifications
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body models.SendNotificationRequest true "Notification data"
// @Success 200 {object} models.APIResponse{data=[]models.SendResult}
// @Router /notifications/send [post]
func (nc *NotificationController) SendDirect(c *gin.Context) {
	var req models.SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if validationErrors := nc.validator.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}
	if req.Priority == "" {
		req.Priority = "normal"
	}

	results, err := nc.pushService.SendDirect(c.Request.Context(), req)
	if err != nil {
		logrus.Errorf("Direct send failed: %v", err)
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Notifications sent", results)
}

func intentFromRequest(userID string, req models.ScheduleNotificationRequest) (*models.Notification, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, err
	}

	channels := req.Channels
	if !channels.Push && !channels.SMS && !channels.InApp && !channels.Local {
		channels.Push = true
	}

	priority := req.Priority
	if priority == "" {
		priority = "normal"
	}

	return &models.Notification{
		UserID:   objectID,
		Type:     req.Type,
		Title:    req.Title,
		Body:     req.Body,
		Data:     req.Data,
		Priority: priority,
		Channels: channels,
	}, nil
}
