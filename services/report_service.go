package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"elaro/config"
	"elaro/models"
	"elaro/repositories"
	"elaro/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// reportStore is satisfied by repositories.ReportRepository.
type reportStore interface {
	GetByUserWeek(ctx context.Context, userID string, weekStart time.Time) (*models.WeeklyReport, error)
	Create(ctx context.Context, report *models.WeeklyReport) error
	Update(ctx context.Context, id primitive.ObjectID, updates bson.M) error
	GetFailedSince(ctx context.Context, cutoff time.Time) ([]models.WeeklyReport, error)
	CreateLog(ctx context.Context, log *models.ProcessingLog) error
	UpdateLog(ctx context.Context, id primitive.ObjectID, updates bson.M) error
	GetSessionsBetween(ctx context.Context, userID string, from, to time.Time) ([]models.StudySession, error)
}

// reportUserDirectory is the user lookup slice the report run needs.
type reportUserDirectory interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetReportEligible(ctx context.Context, activeSince time.Time) ([]models.User, error)
}

// reportLedger reads notification aggregates for the weekly window.
type reportLedger interface {
	CountBetween(ctx context.Context, userID string, from, to time.Time) (sent int64, read int64, err error)
}

// ReportService runs the weekly report batch: eligibility, prioritization,
// chunked generation, and failed-run recovery. Reports are idempotent per
// (user, week); re-runs after a crash skip completed work.
type ReportService struct {
	reportRepo   reportStore
	userRepo     reportUserDirectory
	deliveryRepo reportLedger
	schedService *SchedulingService
	cfg          config.ReportConfig

	// Injected for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

func NewReportService(
	reportRepo reportStore,
	userRepo reportUserDirectory,
	deliveryRepo reportLedger,
	schedService *SchedulingService,
	cfg config.ReportConfig,
) *ReportService {
	return &ReportService{
		reportRepo:   reportRepo,
		userRepo:     userRepo,
		deliveryRepo: deliveryRepo,
		schedService: schedService,
		cfg:          cfg,
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// RunWeeklyReports generates last week's report for every eligible user, in
// priority order, in chunks with a pause between them so the store is not
// hammered. The processing log is updated after every chunk; a crash leaves
// an accurate partial record.
func (rs *ReportService) RunWeeklyReports(ctx context.Context) (*models.ProcessingLog, error) {
	now := rs.now()
	weekStart := utils.StartOfWeek(now.AddDate(0, 0, -7))

	activeSince := now.AddDate(0, 0, -rs.cfg.ActiveWithinDays)
	users, err := rs.userRepo.GetReportEligible(ctx, activeSince)
	if err != nil {
		return nil, utils.WrapDatabaseError(err, "find eligible users")
	}

	rs.sortByPriority(users, now)

	runLog := &models.ProcessingLog{
		RunType:   models.RunTypeWeeklyReports,
		StartedAt: now,
		Eligible:  len(users),
		Status:    models.RunStatusRunning,
	}
	if err := rs.reportRepo.CreateLog(ctx, runLog); err != nil {
		return nil, utils.WrapDatabaseError(err, "create processing log")
	}

	logrus.Infof("Weekly report run started: %d eligible users, week of %s", len(users), weekStart.Format("2006-01-02"))

	for start := 0; start < len(users); start += rs.cfg.ChunkSize {
		if ctx.Err() != nil {
			rs.finishLog(ctx, runLog, models.RunStatusFailed)
			return runLog, ctx.Err()
		}

		end := start + rs.cfg.ChunkSize
		if end > len(users) {
			end = len(users)
		}

		for _, user := range users[start:end] {
			outcome := rs.generateForUser(ctx, &user, weekStart)
			runLog.Processed++
			switch outcome {
			case reportOutcomeSuccess:
				runLog.Successful++
			case reportOutcomeSkipped:
				runLog.Skipped++
			case reportOutcomeFailed:
				runLog.Failed++
			}
		}

		rs.updateLogCounts(ctx, runLog)

		if end < len(users) {
			rs.sleep(rs.cfg.ChunkPause)
		}
	}

	rs.finishLog(ctx, runLog, models.RunStatusCompleted)

	logrus.Infof("Weekly report run finished: %d processed, %d successful, %d skipped, %d failed",
		runLog.Processed, runLog.Successful, runLog.Skipped, runLog.Failed)

	return runLog, nil
}

type reportOutcome int

const (
	reportOutcomeSuccess reportOutcome = iota
	reportOutcomeSkipped
	reportOutcomeFailed
)

// generateForUser produces one user's report. Errors are recorded on the
// report row and never abort the batch.
func (rs *ReportService) generateForUser(ctx context.Context, user *models.User, weekStart time.Time) reportOutcome {
	userID := user.ID.Hex()

	report, generated, err := rs.GenerateWeeklyReport(ctx, userID, weekStart)
	if err != nil {
		logrus.Warnf("Weekly report failed for user %s: %v", userID, err)
		return reportOutcomeFailed
	}
	if !generated {
		return reportOutcomeSkipped
	}

	rs.notifyReportReady(ctx, user, report)
	return reportOutcomeSuccess
}

// GenerateWeeklyReport builds the aggregate for one (user, week). A completed
// report already existing comes back unchanged with generated=false, so
// repeated calls for the same week return the same report. A failed attempt
// leaves a failed row behind so the retry pass can find it.
func (rs *ReportService) GenerateWeeklyReport(ctx context.Context, userID string, weekStart time.Time) (report *models.WeeklyReport, generated bool, err error) {
	weekEnd := weekStart.AddDate(0, 0, 7)

	existing, err := rs.reportRepo.GetByUserWeek(ctx, userID, weekStart)
	if err != nil && err != mongo.ErrNoDocuments {
		return nil, false, utils.WrapDatabaseError(err, "check existing report")
	}

	if existing != nil {
		if existing.Status == models.ReportStatusCompleted {
			return existing, false, nil
		}
		// Failed or stuck generating: rebuild in place.
		report = existing
	} else {
		objectID, err := primitive.ObjectIDFromHex(userID)
		if err != nil {
			return nil, false, utils.NewBadRequestError("invalid user ID")
		}
		report = &models.WeeklyReport{
			UserID:    objectID,
			WeekStart: weekStart,
			WeekEnd:   weekEnd,
			Status:    models.ReportStatusGenerating,
		}
		if err := rs.reportRepo.Create(ctx, report); err != nil {
			// Concurrent run won the unique index race; hand back whatever
			// that run produced.
			if repositories.IsDuplicateReportError(err) {
				winner, getErr := rs.reportRepo.GetByUserWeek(ctx, userID, weekStart)
				if getErr != nil {
					return nil, false, nil
				}
				return winner, false, nil
			}
			return nil, false, utils.WrapDatabaseError(err, "create report")
		}
	}

	data, err := rs.buildReportData(ctx, userID, weekStart, weekEnd)
	if err != nil {
		updates := bson.M{
			"status": models.ReportStatusFailed,
			"error":  err.Error(),
		}
		if updateErr := rs.reportRepo.Update(ctx, report.ID, updates); updateErr != nil {
			logrus.Errorf("Failed to mark report %s failed: %v", report.ID.Hex(), updateErr)
		}
		return nil, false, err
	}

	completedAt := rs.now()
	updates := bson.M{
		"status":      models.ReportStatusCompleted,
		"data":        data,
		"error":       "",
		"completedAt": completedAt,
	}
	if err := rs.reportRepo.Update(ctx, report.ID, updates); err != nil {
		return nil, false, utils.WrapDatabaseError(err, "complete report")
	}

	report.Status = models.ReportStatusCompleted
	report.Data = data
	report.Error = ""
	report.CompletedAt = &completedAt

	return report, true, nil
}

// RetryFailedReports regenerates reports that failed within the retry window.
func (rs *ReportService) RetryFailedReports(ctx context.Context) (*models.ProcessingLog, error) {
	now := rs.now()
	cutoff := now.Add(-rs.cfg.RetryFailedWithin)

	failed, err := rs.reportRepo.GetFailedSince(ctx, cutoff)
	if err != nil {
		return nil, utils.WrapDatabaseError(err, "find failed reports")
	}
	if len(failed) == 0 {
		return nil, nil
	}

	runLog := &models.ProcessingLog{
		RunType:   models.RunTypeRetryFailed,
		StartedAt: now,
		Eligible:  len(failed),
		Status:    models.RunStatusRunning,
	}
	if err := rs.reportRepo.CreateLog(ctx, runLog); err != nil {
		return nil, utils.WrapDatabaseError(err, "create processing log")
	}

	for _, report := range failed {
		userID := report.UserID.Hex()
		runLog.Processed++

		_, generated, err := rs.GenerateWeeklyReport(ctx, userID, report.WeekStart)
		switch {
		case err != nil:
			logrus.Warnf("Report retry failed for user %s: %v", userID, err)
			runLog.Failed++
		case !generated:
			runLog.Skipped++
		default:
			runLog.Successful++
		}
	}

	rs.finishLog(ctx, runLog, models.RunStatusCompleted)

	logrus.Infof("Report retry run finished: %d retried, %d successful", runLog.Processed, runLog.Successful)
	return runLog, nil
}

// GetReport fetches a completed or failed report for the API surface.
func (rs *ReportService) GetReport(ctx context.Context, userID string, weekStart time.Time) (*models.WeeklyReport, error) {
	report, err := rs.reportRepo.GetByUserWeek(ctx, userID, weekStart)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NewReportNotFoundError()
		}
		return nil, utils.WrapDatabaseError(err, "get report")
	}
	return report, nil
}

// buildReportData aggregates one user's week from study sessions and the
// delivery ledger.
func (rs *ReportService) buildReportData(ctx context.Context, userID string, from, to time.Time) (models.ReportData, error) {
	var data models.ReportData

	sessions, err := rs.reportRepo.GetSessionsBetween(ctx, userID, from, to)
	if err != nil {
		return data, fmt.Errorf("load study sessions: %w", err)
	}

	byDay := make(map[string]int)
	focusThreshold := time.Duration(rs.cfg.FocusSessionMinutes) * time.Minute

	var total time.Duration
	for _, session := range sessions {
		if session.EndedAt.Before(session.StartedAt) {
			continue
		}
		length := session.EndedAt.Sub(session.StartedAt)
		total += length
		data.SessionCount++
		if length >= focusThreshold {
			data.FocusSessions++
		}
		if session.Completed {
			data.AssignmentsDone++
		}
		byDay[session.StartedAt.Weekday().String()]++
	}

	data.StudyHours = total.Hours()
	data.ByDay = byDay
	data.ProductivityScore = data.StudyHours * rs.cfg.PointsPerStudyHour

	sent, read, err := rs.deliveryRepo.CountBetween(ctx, userID, from, to)
	if err != nil {
		return data, fmt.Errorf("load notification aggregates: %w", err)
	}
	data.NotificationsSent = int(sent)
	data.NotificationsRead = int(read)
	if sent > 0 {
		data.EngagementRate = float64(read) / float64(sent)
	}

	return data, nil
}

// notifyReportReady schedules the "your week in review" notification through
// the normal smart-timing path. Failure to notify never fails the report.
func (rs *ReportService) notifyReportReady(ctx context.Context, user *models.User, report *models.WeeklyReport) {
	if rs.schedService == nil {
		return
	}

	push := utils.CreateWeeklySummaryNotification(report.Data.StudyHours, report.Data.ProductivityScore)

	intent := &models.Notification{
		UserID:   user.ID,
		Type:     models.NotificationTypeUpdate,
		Title:    push.Title,
		Body:     push.Body,
		Priority: "normal",
		Channels: models.NotificationChannels{Push: true, InApp: true},
		Data: map[string]interface{}{
			"reportId":  report.ID.Hex(),
			"weekStart": report.WeekStart.Format("2006-01-02"),
		},
	}

	if err := rs.schedService.ScheduleWithSmartTiming(ctx, intent, ScheduleOptions{}); err != nil {
		logrus.Warnf("Failed to schedule report notification for user %s: %v", user.ID.Hex(), err)
	}
}

// sortByPriority orders users by tier weight plus recent-activity weight,
// highest first. Ties keep the store order.
func (rs *ReportService) sortByPriority(users []models.User, now time.Time) {
	sort.SliceStable(users, func(i, j int) bool {
		return rs.priorityScore(&users[i], now) > rs.priorityScore(&users[j], now)
	})
}

func (rs *ReportService) priorityScore(user *models.User, now time.Time) int {
	score := 0

	switch user.Tier {
	case models.TierAdmin:
		score += rs.cfg.TierWeightAdmin
	case models.TierPremium:
		score += rs.cfg.TierWeightPremium
	case models.TierPlus:
		score += rs.cfg.TierWeightPlus
	}

	switch {
	case now.Sub(user.LastActiveAt) <= 24*time.Hour:
		score += rs.cfg.ActivityWeightDay
	case now.Sub(user.LastActiveAt) <= 7*24*time.Hour:
		score += rs.cfg.ActivityWeightWeek
	}

	return score
}

func (rs *ReportService) updateLogCounts(ctx context.Context, runLog *models.ProcessingLog) {
	updates := bson.M{
		"processed":  runLog.Processed,
		"successful": runLog.Successful,
		"failed":     runLog.Failed,
		"skipped":    runLog.Skipped,
	}
	if err := rs.reportRepo.UpdateLog(ctx, runLog.ID, updates); err != nil {
		logrus.Errorf("Failed to update processing log %s: %v", runLog.ID.Hex(), err)
	}
}

func (rs *ReportService) finishLog(ctx context.Context, runLog *models.ProcessingLog, status string) {
	endedAt := rs.now()
	runLog.Status = status
	runLog.EndedAt = &endedAt

	updates := bson.M{
		"status":     status,
		"endedAt":    endedAt,
		"processed":  runLog.Processed,
		"successful": runLog.Successful,
		"failed":     runLog.Failed,
		"skipped":    runLog.Skipped,
	}
	if err := rs.reportRepo.UpdateLog(ctx, runLog.ID, updates); err != nil {
		logrus.Errorf("Failed to finish processing log %s: %v", runLog.ID.Hex(), err)
	}
}
