package services

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"elaro/config"
	"elaro/models"
	"elaro/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// scheduleQueue is satisfied by repositories.NotificationRepository.
type scheduleQueue interface {
	Create(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	Update(ctx context.Context, id string, updates bson.M) error
}

// deliveryLedger is the slice of the history ledger the engine reads for
// frequency and engagement decisions.
type deliveryLedger interface {
	CountSentSince(ctx context.Context, userID string, since time.Time) (int64, error)
	GetLastSent(ctx context.Context, userID string) (*models.DeliveryRecord, error)
	GetOpenedSince(ctx context.Context, userID string, since time.Time) ([]models.DeliveryRecord, error)
}

type SchedulingService struct {
	notificationRepo scheduleQueue
	deliveryRepo     deliveryLedger
	prefService      *PreferenceService
	cfg              config.SchedulingConfig

	// Injected for tests.
	now    func() time.Time
	jitter func() time.Duration
}

type ScheduleOptions struct {
	// At bypasses smart timing and pins the delivery time. Quiet hours and
	// frequency controls still apply.
	At *time.Time
}

func NewSchedulingService(
	notificationRepo scheduleQueue,
	deliveryRepo deliveryLedger,
	prefService *PreferenceService,
	cfg config.SchedulingConfig,
) *SchedulingService {
	ss := &SchedulingService{
		notificationRepo: notificationRepo,
		deliveryRepo:     deliveryRepo,
		prefService:      prefService,
		cfg:              cfg,
		now:              time.Now,
	}
	ss.jitter = func() time.Duration {
		window := int64(cfg.JitterWindow)
		return time.Duration(rand.Int63n(2*window+1) - window)
	}
	return ss
}

// ScheduleWithSmartTiming picks a delivery time for the intent from the
// user's preferences and recent history, then persists it as a pending queue
// row. That row is the only durable side effect of this call.
func (ss *SchedulingService) ScheduleWithSmartTiming(ctx context.Context, intent *models.Notification, opts ScheduleOptions) error {
	userID := intent.UserID.Hex()

	prefs, err := ss.prefService.Get(ctx, userID)
	if err != nil {
		return err
	}

	// Master toggle off: silently drop. No record, no error.
	if !prefs.MasterToggle {
		logrus.Debugf("Notifications disabled for user %s, dropping %s intent", userID, intent.Type)
		return nil
	}
	if enabled, known := prefs.Types[intent.Type]; known && !enabled {
		logrus.Debugf("Type %s disabled for user %s, dropping intent", intent.Type, userID)
		return nil
	}

	now := ss.now()

	var candidate time.Time
	if opts.At != nil {
		candidate = *opts.At
	} else {
		candidate = ss.candidateTime(ctx, prefs, intent.Type, now)
		candidate = candidate.Add(ss.jitter())
	}

	candidate = ss.applyQuietHours(prefs.QuietHours, candidate)

	candidate, err = ss.applyFrequencyControls(ctx, userID, prefs.Frequency, candidate, now)
	if err != nil {
		// History lookups failing must not lose the notification.
		logrus.Warnf("Frequency check failed for user %s: %v", userID, err)
	}

	intent.ScheduledFor = candidate
	intent.Status = models.NotificationStatusPending
	if intent.Priority == "" {
		intent.Priority = "normal"
	}
	if intent.ExpiresAt.IsZero() {
		intent.ExpiresAt = now.Add(30 * 24 * time.Hour)
	}

	if err := ss.notificationRepo.Create(ctx, intent); err != nil {
		return utils.WrapDatabaseError(err, "schedule notification")
	}

	logrus.Debugf("Scheduled %s notification for user %s at %s", intent.Type, userID, candidate.Format(time.RFC3339))
	return nil
}

// BatchNotifications combines pending intents of the same type into one
// summary notification when the user prefers daily or weekly summaries.
// Otherwise every intent is scheduled individually.
func (ss *SchedulingService) BatchNotifications(ctx context.Context, userID string, intents []*models.Notification) error {
	if len(intents) == 0 {
		return nil
	}

	prefs, err := ss.prefService.Get(ctx, userID)
	if err != nil {
		return err
	}

	summary := prefs.Frequency.SummaryFrequency
	if summary != models.SummaryDaily && summary != models.SummaryWeekly {
		for _, intent := range intents {
			if err := ss.ScheduleWithSmartTiming(ctx, intent, ScheduleOptions{}); err != nil {
				return err
			}
		}
		return nil
	}

	groups := make(map[string][]*models.Notification)
	var order []string
	for _, intent := range intents {
		if _, seen := groups[intent.Type]; !seen {
			order = append(order, intent.Type)
		}
		groups[intent.Type] = append(groups[intent.Type], intent)
	}

	for _, notificationType := range order {
		group := groups[notificationType]
		combined := combineIntents(notificationType, group)
		if err := ss.ScheduleWithSmartTiming(ctx, combined, ScheduleOptions{}); err != nil {
			return err
		}
	}

	return nil
}

// combineIntents synthesizes one summary notification for a group, carrying
// the original intent ids in the payload for later expansion on the client.
func combineIntents(notificationType string, group []*models.Notification) *models.Notification {
	label, ok := models.TypeLabels[notificationType]
	if !ok {
		label = "Notifications"
	}

	ids := make([]string, 0, len(group))
	for _, intent := range group {
		if intent.ID.IsZero() {
			ids = append(ids, utils.GenerateUUID())
		} else {
			ids = append(ids, intent.ID.Hex())
		}
	}

	combined := &models.Notification{
		UserID:   group[0].UserID,
		Type:     notificationType,
		Title:    fmt.Sprintf("%d %s", len(group), label),
		Priority: group[0].Priority,
		Channels: group[0].Channels,
		Data: map[string]interface{}{
			"batched":    true,
			"batchCount": strconv.Itoa(len(group)),
			"batchedIds": strings.Join(ids, ","),
		},
	}

	if len(group) > 1 {
		combined.Body = fmt.Sprintf("%d new notifications", len(group))
	} else {
		combined.Body = group[0].Body
	}

	return combined
}

// HandleRescheduling moves a pending notification by a fixed delta keyed on
// the reason, increments the retry counter, and clears any previous error.
func (ss *SchedulingService) HandleRescheduling(ctx context.Context, id, reason string) (*models.Notification, error) {
	notification, err := ss.notificationRepo.GetByID(ctx, id)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NewNotificationNotFoundError()
		}
		return nil, utils.WrapDatabaseError(err, "get notification")
	}

	// Sending rows are claimed by the delivery worker; the send gate reschedules
	// them when quiet hours or DND win at send time, so they go back to pending.
	if notification.Status != models.NotificationStatusPending && notification.Status != models.NotificationStatusSending {
		return nil, utils.NewConflictError("only pending notifications can be rescheduled")
	}

	now := ss.now()
	var newTime time.Time

	switch reason {
	case models.RescheduleReasonUserBusy:
		newTime = now.Add(ss.cfg.RescheduleUserBusy)
	case models.RescheduleReasonQuietHours:
		prefs, err := ss.prefService.Get(ctx, notification.UserID.Hex())
		if err != nil {
			return nil, err
		}
		newTime = quietHoursEnd(prefs.QuietHours, now)
		if !newTime.After(now) {
			newTime = now.Add(ss.cfg.RescheduleOther)
		}
	case models.RescheduleReasonFrequencyLimit:
		newTime = now.Add(ss.cfg.RescheduleFrequency)
	case models.RescheduleReasonOther:
		newTime = now.Add(ss.cfg.RescheduleOther)
	default:
		return nil, utils.NewBadRequestError("unknown reschedule reason")
	}

	updates := bson.M{
		"status":       models.NotificationStatusPending,
		"scheduledFor": newTime,
		"retryCount":   notification.RetryCount + 1,
		"lastRetry":    now,
		"lastError":    "",
	}

	if err := ss.notificationRepo.Update(ctx, id, updates); err != nil {
		return nil, utils.WrapDatabaseError(err, "reschedule notification")
	}

	notification.Status = models.NotificationStatusPending
	notification.ScheduledFor = newTime
	notification.RetryCount++
	notification.LastError = ""

	return notification, nil
}

// candidateTime maps the intent type onto the user's preferred slots.
// Reminders and assignments land in the morning, reviews and lectures in the
// evening, everything else at the engagement-derived optimal time.
func (ss *SchedulingService) candidateTime(ctx context.Context, prefs *models.NotificationPreference, notificationType string, now time.Time) time.Time {
	var candidate time.Time

	switch notificationType {
	case models.NotificationTypeReminder, models.NotificationTypeAssignment:
		candidate = nextWallClock(now, prefs.PreferredTimes.Morning)
	case models.NotificationTypeSRS, models.NotificationTypeLecture:
		candidate = nextWallClock(now, prefs.PreferredTimes.Evening)
	default:
		optimal, err := ss.bestOptimalTime(ctx, prefs.UserID.Hex(), now)
		if err != nil {
			logrus.Debugf("Optimal time lookup failed for user %s, falling back: %v", prefs.UserID.Hex(), err)
			return now.Add(ss.cfg.FallbackDelay)
		}
		candidate = nextHour(now, optimal.Hour)
	}

	return adjustForWeekend(candidate, prefs.PreferredTimes.WeekendBehavior)
}

// bestOptimalTime picks the single highest-scoring slot from the rolling
// engagement window. Ties keep the first slot encountered.
func (ss *SchedulingService) bestOptimalTime(ctx context.Context, userID string, now time.Time) (models.OptimalTime, error) {
	since := now.AddDate(0, 0, -ss.cfg.EngagementWindowDays)
	records, err := ss.deliveryRepo.GetOpenedSince(ctx, userID, since)
	if err != nil {
		return models.OptimalTime{}, err
	}

	times := ComputeOptimalTimes(records)
	if len(times) == 0 {
		return models.OptimalTime{}, fmt.Errorf("no engagement history for user %s", userID)
	}

	best := times[0]
	for _, candidate := range times[1:] {
		if candidate.EngagementScore > best.EngagementScore {
			best = candidate
		}
	}

	return best, nil
}

// ComputeOptimalTimes buckets opened notifications by hour of day and scores
// each bucket by open count. The result is a cache, never ground truth.
func ComputeOptimalTimes(records []models.DeliveryRecord) []models.OptimalTime {
	type bucket struct {
		hour  int
		day   int
		opens int
	}

	buckets := make(map[int]*bucket)
	var order []int
	for _, record := range records {
		if record.OpenedAt == nil {
			continue
		}
		hour := record.OpenedAt.Hour()
		b, seen := buckets[hour]
		if !seen {
			b = &bucket{hour: hour, day: int(record.OpenedAt.Weekday())}
			buckets[hour] = b
			order = append(order, hour)
		}
		b.opens++
	}

	times := make([]models.OptimalTime, 0, len(order))
	for _, hour := range order {
		b := buckets[hour]
		times = append(times, models.OptimalTime{
			Hour:            b.hour,
			DayOfWeek:       b.day,
			EngagementScore: float64(b.opens),
			Context:         contextLabel(b.hour),
		})
	}

	return times
}

func contextLabel(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning_routine"
	case hour >= 12 && hour < 17:
		return "afternoon_break"
	case hour >= 17 && hour < 22:
		return "evening_review"
	default:
		return "late_night"
	}
}

// applyQuietHours defers a quiet-window hit to the window's end on the same
// logical day.
func (ss *SchedulingService) applyQuietHours(quiet models.QuietHours, candidate time.Time) time.Time {
	if !IsQuietTime(quiet, candidate) {
		return candidate
	}
	return quietHoursEnd(quiet, candidate)
}

// applyFrequencyControls enforces the daily cap, then the cooldown gap.
func (ss *SchedulingService) applyFrequencyControls(ctx context.Context, userID string, freq models.FrequencySettings, candidate, now time.Time) (time.Time, error) {
	midnight := utils.StartOfDay(now)

	sentToday, err := ss.deliveryRepo.CountSentSince(ctx, userID, midnight)
	if err != nil {
		return candidate, err
	}

	if sentToday >= int64(freq.MaxPerDay) {
		next := midnight.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(), ss.cfg.OverflowHour, 0, 0, 0, next.Location()), nil
	}

	if freq.CooldownMinutes <= 0 {
		return candidate, nil
	}

	last, err := ss.deliveryRepo.GetLastSent(ctx, userID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return candidate, nil
		}
		return candidate, err
	}

	cooldown := time.Duration(freq.CooldownMinutes) * time.Minute
	if now.Sub(last.SentAt) < cooldown && candidate.Before(last.SentAt.Add(cooldown)) {
		return last.SentAt.Add(cooldown), nil
	}

	return candidate, nil
}

// IsQuietTime reports whether t falls inside the quiet window. Overnight
// windows (start > end) wrap around midnight: quiet iff t >= start OR
// t < end. Same-day windows are quiet iff start <= t < end.
func IsQuietTime(quiet models.QuietHours, t time.Time) bool {
	if !quiet.Enabled {
		return false
	}

	start, err := parseWallClock(quiet.Start)
	if err != nil {
		return false
	}
	end, err := parseWallClock(quiet.End)
	if err != nil {
		return false
	}

	current := t.Hour()*60 + t.Minute()

	if start > end {
		return current >= start || current < end
	}
	return current >= start && current < end
}

// quietHoursEnd returns the moment the quiet window covering t ends. For an
// overnight window, a pre-midnight hit ends the next calendar day; a
// post-midnight hit ends the same day.
func quietHoursEnd(quiet models.QuietHours, t time.Time) time.Time {
	end, err := parseWallClock(quiet.End)
	if err != nil {
		return t
	}
	start, err := parseWallClock(quiet.Start)
	if err != nil {
		return t
	}

	day := utils.StartOfDay(t)
	current := t.Hour()*60 + t.Minute()

	if start > end && current >= start {
		day = day.AddDate(0, 0, 1)
	}

	return day.Add(time.Duration(end) * time.Minute)
}

// parseWallClock converts "HH:MM" to minutes past midnight.
func parseWallClock(s string) (int, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// nextWallClock returns today's occurrence of the HH:MM slot, or tomorrow's
// when the slot has already passed.
func nextWallClock(now time.Time, hhmm string) time.Time {
	minutes, err := parseWallClock(hhmm)
	if err != nil {
		return now.Add(time.Hour)
	}

	candidate := utils.StartOfDay(now).Add(time.Duration(minutes) * time.Minute)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func nextHour(now time.Time, hour int) time.Time {
	candidate := utils.StartOfDay(now).Add(time.Duration(hour) * time.Hour)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// adjustForWeekend applies the weekend behavior: shifted slots move an hour
// later, off pushes delivery to Monday's slot.
func adjustForWeekend(candidate time.Time, behavior string) time.Time {
	weekday := candidate.Weekday()
	if weekday != time.Saturday && weekday != time.Sunday {
		return candidate
	}

	switch behavior {
	case models.WeekendShifted:
		return candidate.Add(time.Hour)
	case models.WeekendOff:
		for candidate.Weekday() != time.Monday {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate
	default:
		return candidate
	}
}
