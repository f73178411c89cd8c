package controllers

import (
	"strconv"

	"elaro/models"
	"elaro/services"
	"elaro/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type HistoryController struct {
	historyService *services.HistoryService
	validator      *utils.ValidationService
}

func NewHistoryController(historyService *services.HistoryService) *HistoryController {
	return &HistoryController{
		historyService: historyService,
		validator:      utils.NewValidationService(),
	}
}

// List pages the user's delivery history
// @Summary Get notification history
// @Tags History
// @Security BearerAuth
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Page size" default(20)
// @Param type query string false "Notification type filter"
// @Param unreadOnly query bool false "Only unread records"
// @Success 200 {object} models.APIResponse{data=[]models.DeliveryRecord}
// @Router /history [get]
func (hc *HistoryController) List(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	unreadOnly, _ := strconv.ParseBool(c.DefaultQuery("unreadOnly", "false"))

	req := models.GetHistoryRequest{
		UserID:     userID,
		Page:       utils.ClampInt(page, 1, 10000),
		PageSize:   utils.ClampInt(pageSize, 1, 100),
		Type:       c.Query("type"),
		UnreadOnly: unreadOnly,
	}

	records, total, err := hc.historyService.List(c.Request.Context(), req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	meta := utils.CreatePaginationMeta(req.Page, req.PageSize, total)
	utils.SuccessResponseWithMeta(c, "History retrieved", records, meta)
}

// MarkRead marks one record as read
// @Summary Mark record read
// @Tags History
// @Security BearerAuth
// @Param id path string true "Record ID"
// @Success 200 {object} models.APIResponse
// @Router /history/{id}/read [put]
func (hc *HistoryController) MarkRead(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	if err := hc.historyService.MarkRead(c.Request.Context(), c.Param("id"), userID); err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Record marked read", nil)
}

// MarkAllRead marks every unread record as read
// @Summary Mark all records read
// @Tags History
// @Security BearerAuth
// @Success 200 {object} models.APIResponse
// @Router /history/read-all [put]
func (hc *HistoryController) MarkAllRead(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	count, err := hc.historyService.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Records marked read", gin.H{"updated": count})
}

// Delete removes one history record
// @Summary Delete record
// @Tags History
// @Security BearerAuth
// @Param id path string true "Record ID"
// @Success 200 {object} models.APIResponse
// @Router /history/{id} [delete]
func (hc *HistoryController) Delete(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	if err := hc.historyService.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Record deleted", nil)
}

// Sync replays the client's offline action queue
// @Summary Sync offline actions
// @Tags History
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body models.SyncHistoryRequest true "Queued offline actions"
// @Success 200 {object} models.APIResponse{data=models.SyncHistoryResult}
// @Router /history/sync [post]
func (hc *HistoryController) Sync(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	var req models.SyncHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if validationErrors := hc.validator.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	result, err := hc.historyService.Sync(c.Request.Context(), userID, req)
	if err != nil {
		logrus.Errorf("History sync failed for user %s: %v", userID, err)
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Offline actions synced", result)
}
