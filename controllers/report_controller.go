package controllers

import (
	"time"

	"elaro/services"
	"elaro/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ReportController struct {
	reportService *services.ReportService
}

func NewReportController(reportService *services.ReportService) *ReportController {
	return &ReportController{
		reportService: reportService,
	}
}

// Run triggers the weekly report batch (admin only)
// @Summary Run weekly reports
// @Tags Reports
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.ProcessingLog}
// @Router /reports/run [post]
func (rc *ReportController) Run(c *gin.Context) {
	runLog, err := rc.reportService.RunWeeklyReports(c.Request.Context())
	if err != nil {
		logrus.Errorf("Manual weekly report run failed: %v", err)
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Weekly report run completed", runLog)
}

// Retry re-runs recently failed reports (admin only)
// @Summary Retry failed reports
// @Tags Reports
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.ProcessingLog}
// @Router /reports/retry [post]
func (rc *ReportController) Retry(c *gin.Context) {
	runLog, err := rc.reportService.RetryFailedReports(c.Request.Context())
	if err != nil {
		logrus.Errorf("Report retry run failed: %v", err)
		utils.ServiceErrorResponse(c, err)
		return
	}

	if runLog == nil {
		utils.SuccessResponse(c, "No failed reports to retry", nil)
		return
	}
	utils.SuccessResponse(c, "Report retry run completed", runLog)
}

// Get fetches one user's report for a week (admin only)
// @Summary Get weekly report
// @Tags Reports
// @Security BearerAuth
// @Produce json
// @Param userId path string true "User ID"
// @Param weekStart path string true "Week start date (YYYY-MM-DD, a Monday)"
// @Success 200 {object} models.APIResponse{data=models.WeeklyReport}
// @Router /reports/{userId}/{weekStart} [get]
func (rc *ReportController) Get(c *gin.Context) {
	weekStart, err := time.Parse("2006-01-02", c.Param("weekStart"))
	if err != nil {
		utils.BadRequestResponse(c, "weekStart must be a YYYY-MM-DD date")
		return
	}
	if weekStart.Weekday() != time.Monday {
		utils.BadRequestResponse(c, "weekStart must be a Monday")
		return
	}

	report, err := rc.reportService.GetReport(c.Request.Context(), c.Param("userId"), weekStart)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Report retrieved", report)
}
