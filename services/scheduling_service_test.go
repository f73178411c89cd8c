package services

import (
	"context"
	"testing"
	"time"

	"elaro/config"
	"elaro/models"
	"elaro/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Wednesday, noon. Far from weekends and quiet hours.
var baseNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, prefs *models.NotificationPreference, queue *fakeQueue, ledger *fakeLedger) *SchedulingService {
	t.Helper()

	prefService := NewPreferenceService(&fakePrefStore{prefs: prefs})
	ss := NewSchedulingService(queue, ledger, prefService, config.DefaultSchedulingConfig())
	ss.now = fixedClock(baseNow)
	ss.jitter = noJitter
	return ss
}

func TestIsQuietTime(t *testing.T) {
	overnight := models.QuietHours{Enabled: true, Start: "22:00", End: "08:00"}
	sameDay := models.QuietHours{Enabled: true, Start: "12:00", End: "14:00"}

	at := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 4, hour, minute, 0, 0, time.UTC)
	}

	tests := []struct {
		name  string
		quiet models.QuietHours
		t     time.Time
		want  bool
	}{
		{"overnight before midnight", overnight, at(23, 30), true},
		{"overnight after midnight", overnight, at(3, 0), true},
		{"overnight at start", overnight, at(22, 0), true},
		{"overnight at end", overnight, at(8, 0), false},
		{"overnight midday", overnight, at(12, 0), false},
		{"overnight just before start", overnight, at(21, 59), false},
		{"same day inside", sameDay, at(13, 0), true},
		{"same day at start", sameDay, at(12, 0), true},
		{"same day at end", sameDay, at(14, 0), false},
		{"same day before", sameDay, at(11, 59), false},
		{"disabled", models.QuietHours{Enabled: false, Start: "22:00", End: "08:00"}, at(23, 30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuietTime(tt.quiet, tt.t))
		})
	}
}

func TestScheduleMasterToggleOffDropsSilently(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)
	prefs.MasterToggle = false

	queue := newFakeQueue()
	ss := newTestScheduler(t, prefs, queue, &fakeLedger{})

	intent := &models.Notification{UserID: userID, Type: models.NotificationTypeReminder, Title: "t", Body: "b"}
	err := ss.ScheduleWithSmartTiming(context.Background(), intent, ScheduleOptions{})

	require.NoError(t, err)
	assert.Empty(t, queue.created)
}

func TestScheduleDisabledTypeDropsSilently(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)
	prefs.Types[models.NotificationTypeReminder] = false

	queue := newFakeQueue()
	ss := newTestScheduler(t, prefs, queue, &fakeLedger{})

	intent := &models.Notification{UserID: userID, Type: models.NotificationTypeReminder}
	require.NoError(t, ss.ScheduleWithSmartTiming(context.Background(), intent, ScheduleOptions{}))
	assert.Empty(t, queue.created)
}

func TestScheduleReminderLandsOnMorningSlot(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)

	queue := newFakeQueue()
	ss := newTestScheduler(t, prefs, queue, &fakeLedger{})

	intent := &models.Notification{UserID: userID, Type: models.NotificationTypeReminder, Title: "t", Body: "b"}
	require.NoError(t, ss.ScheduleWithSmartTiming(context.Background(), intent, ScheduleOptions{}))

	require.Len(t, queue.created, 1)
	// Morning slot already passed today, so tomorrow 09:00.
	want := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, want, queue.created[0].ScheduledFor)
	assert.Equal(t, models.NotificationStatusPending, queue.created[0].Status)
}

func TestScheduleSRSLandsOnEveningSlot(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)

	queue := newFakeQueue()
	ss := newTestScheduler(t, prefs, queue, &fakeLedger{})

	intent := &models.Notification{UserID: userID, Type: models.NotificationTypeSRS}
	require.NoError(t, ss.ScheduleWithSmartTiming(context.Background(), intent, ScheduleOptions{}))

	require.Len(t, queue.created, 1)
	want := time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, want, queue.created[0].ScheduledFor)
}

func TestScheduleQuietHoursDefersToWindowEnd(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)
	prefs.PreferredTimes.Evening = "23:30"

	queue := newFakeQueue()
	ss := newTestScheduler(t, prefs, queue, &fakeLedger{})

	intent := &models.Notification{UserID: userID, Type: models.NotificationTypeSRS}
	require.NoError(t, ss.ScheduleWithSmartTiming(context.Background(), intent, ScheduleOptions{}))

	require.Len(t, queue.created, 1)
	// 23:30 falls in the 22:00-08:00 window, so the next morning 08:00.
	want := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, want, queue.created[0].ScheduledFor)
}

func TestScheduleDailyCapMovesToNextMorning(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)

	queue := newFakeQueue()
	ledger := &fakeLedger{sentToday: int64(prefs.Frequency.MaxPerDay)}
	ss := newTestScheduler(t, prefs, queue, ledger)

	intent := &models.Notification{UserID: userID, Type: models.NotificationTypeSRS}
	require.NoError(t, ss.ScheduleWithSmartTiming(context.Background(), intent, ScheduleOptions{}))

	require.Len(t, queue.created, 1)
	want := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, want, queue.created[0].ScheduledFor)
}

func TestScheduleCooldownShiftsToLastSentPlusGap(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)

	lastSent := baseNow.Add(-15 * time.Minute)
	queue := newFakeQueue()
	ledger := &fakeLedger{lastSent: &models.DeliveryRecord{SentAt: lastSent}}
	ss := newTestScheduler(t, prefs, queue, ledger)

	at := baseNow
	intent := &models.Notification{UserID: userID, Type: models.NotificationTypeUpdate}
	require.NoError(t, ss.ScheduleWithSmartTiming(context.Background(), intent, ScheduleOptions{At: &at}))

	require.Len(t, queue.created, 1)
	assert.Equal(t, lastSent.Add(30*time.Minute), queue.created[0].ScheduledFor)
}

func TestScheduleOptimalTimeFallsBackOnLookupFailure(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)

	queue := newFakeQueue()
	ledger := &fakeLedger{openedErr: assert.AnError}
	ss := newTestScheduler(t, prefs, queue, ledger)

	intent := &models.Notification{UserID: userID, Type: models.NotificationTypeAchievement}
	require.NoError(t, ss.ScheduleWithSmartTiming(context.Background(), intent, ScheduleOptions{}))

	require.Len(t, queue.created, 1)
	assert.Equal(t, baseNow.Add(time.Hour), queue.created[0].ScheduledFor)
}

func TestScheduleOptimalTimeUsesBestEngagementHour(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)

	openedAt := func(hour int) *time.Time {
		return utils.TimePtr(time.Date(2026, 2, 20, hour, 15, 0, 0, time.UTC))
	}
	ledger := &fakeLedger{opened: []models.DeliveryRecord{
		{OpenedAt: openedAt(20)},
		{OpenedAt: openedAt(20)},
		{OpenedAt: openedAt(20)},
		{OpenedAt: openedAt(7)},
	}}

	queue := newFakeQueue()
	ss := newTestScheduler(t, prefs, queue, ledger)

	intent := &models.Notification{UserID: userID, Type: models.NotificationTypeAchievement}
	require.NoError(t, ss.ScheduleWithSmartTiming(context.Background(), intent, ScheduleOptions{}))

	require.Len(t, queue.created, 1)
	want := time.Date(2026, 3, 4, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, want, queue.created[0].ScheduledFor)
}

func TestScheduleWeekendOffPushesToMonday(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)
	prefs.PreferredTimes.WeekendBehavior = models.WeekendOff

	queue := newFakeQueue()
	ss := newTestScheduler(t, prefs, queue, &fakeLedger{})
	// Friday noon: the next morning slot is Saturday.
	ss.now = fixedClock(time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC))

	intent := &models.Notification{UserID: userID, Type: models.NotificationTypeReminder}
	require.NoError(t, ss.ScheduleWithSmartTiming(context.Background(), intent, ScheduleOptions{}))

	require.Len(t, queue.created, 1)
	want := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, want, queue.created[0].ScheduledFor)
	assert.Equal(t, time.Monday, queue.created[0].ScheduledFor.Weekday())
}

func TestScheduleJitterStaysInsideWindow(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)
	prefs.QuietHours.Enabled = false

	queue := newFakeQueue()
	prefService := NewPreferenceService(&fakePrefStore{prefs: prefs})
	ss := NewSchedulingService(queue, &fakeLedger{}, prefService, config.DefaultSchedulingConfig())
	ss.now = fixedClock(baseNow)

	slot := time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		intent := &models.Notification{UserID: userID, Type: models.NotificationTypeSRS}
		require.NoError(t, ss.ScheduleWithSmartTiming(context.Background(), intent, ScheduleOptions{}))
	}

	for _, created := range queue.created {
		diff := created.ScheduledFor.Sub(slot)
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqual(t, diff, 15*time.Minute)
	}
}

func TestBatchCombinesByTypeForDailySummary(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)
	prefs.Frequency.SummaryFrequency = models.SummaryDaily

	queue := newFakeQueue()
	ss := newTestScheduler(t, prefs, queue, &fakeLedger{})

	intents := []*models.Notification{
		{UserID: userID, Type: models.NotificationTypeAssignment, Title: "a1", Body: "b1"},
		{UserID: userID, Type: models.NotificationTypeAssignment, Title: "a2", Body: "b2"},
		{UserID: userID, Type: models.NotificationTypeAssignment, Title: "a3", Body: "b3"},
	}
	require.NoError(t, ss.BatchNotifications(context.Background(), userID.Hex(), intents))

	require.Len(t, queue.created, 1)
	combined := queue.created[0]
	assert.Equal(t, "3 Assignments", combined.Title)
	assert.Equal(t, "3 new notifications", combined.Body)
	assert.Equal(t, true, combined.Data["batched"])
	assert.Equal(t, "3", combined.Data["batchCount"])
}

func TestBatchKeepsSingleIntentBody(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)
	prefs.Frequency.SummaryFrequency = models.SummaryWeekly

	queue := newFakeQueue()
	ss := newTestScheduler(t, prefs, queue, &fakeLedger{})

	intents := []*models.Notification{
		{UserID: userID, Type: models.NotificationTypeLecture, Title: "Algorithms", Body: "Room 204 in 15 min"},
	}
	require.NoError(t, ss.BatchNotifications(context.Background(), userID.Hex(), intents))

	require.Len(t, queue.created, 1)
	assert.Equal(t, "1 Lectures", queue.created[0].Title)
	assert.Equal(t, "Room 204 in 15 min", queue.created[0].Body)
}

func TestBatchImmediateSchedulesIndividually(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)

	queue := newFakeQueue()
	ss := newTestScheduler(t, prefs, queue, &fakeLedger{})

	intents := []*models.Notification{
		{UserID: userID, Type: models.NotificationTypeAssignment},
		{UserID: userID, Type: models.NotificationTypeAssignment},
		{UserID: userID, Type: models.NotificationTypeSRS},
	}
	require.NoError(t, ss.BatchNotifications(context.Background(), userID.Hex(), intents))

	assert.Len(t, queue.created, 3)
}

func TestHandleReschedulingUserBusy(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)

	queue := newFakeQueue()
	ss := newTestScheduler(t, prefs, queue, &fakeLedger{})

	pending := &models.Notification{
		UserID:       userID,
		Type:         models.NotificationTypeReminder,
		Status:       models.NotificationStatusPending,
		ScheduledFor: baseNow.Add(time.Hour),
		RetryCount:   1,
		LastError:    "push delivery failed",
	}
	require.NoError(t, queue.Create(context.Background(), pending))

	rescheduled, err := ss.HandleRescheduling(context.Background(), pending.ID.Hex(), models.RescheduleReasonUserBusy)
	require.NoError(t, err)

	assert.Equal(t, baseNow.Add(30*time.Minute), rescheduled.ScheduledFor)
	assert.Equal(t, 2, rescheduled.RetryCount)
	assert.Empty(t, rescheduled.LastError)

	updates := queue.updates[pending.ID.Hex()]
	require.NotNil(t, updates)
	assert.Equal(t, "", updates["lastError"])
}

func TestHandleReschedulingQuietHoursWaitsForWindowEnd(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)

	queue := newFakeQueue()
	ss := newTestScheduler(t, prefs, queue, &fakeLedger{})
	// 23:00: inside the overnight window.
	ss.now = fixedClock(time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC))

	pending := &models.Notification{UserID: userID, Status: models.NotificationStatusPending}
	require.NoError(t, queue.Create(context.Background(), pending))

	rescheduled, err := ss.HandleRescheduling(context.Background(), pending.ID.Hex(), models.RescheduleReasonQuietHours)
	require.NoError(t, err)

	want := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, want, rescheduled.ScheduledFor)
}

func TestHandleReschedulingReturnsClaimedRowToPending(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)

	queue := newFakeQueue()
	ss := newTestScheduler(t, prefs, queue, &fakeLedger{})

	// The delivery worker flips rows to sending when it claims them; a
	// send-time deferral has to hand the row back to the poller.
	claimed := &models.Notification{UserID: userID, Status: models.NotificationStatusSending}
	require.NoError(t, queue.Create(context.Background(), claimed))

	rescheduled, err := ss.HandleRescheduling(context.Background(), claimed.ID.Hex(), models.RescheduleReasonQuietHours)
	require.NoError(t, err)

	assert.Equal(t, models.NotificationStatusPending, rescheduled.Status)
	stored, err := queue.GetByID(context.Background(), claimed.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.NotificationStatusPending, stored.Status)
}

func TestHandleReschedulingRejectsSentNotification(t *testing.T) {
	userID := primitive.NewObjectID()
	prefs := models.DefaultPreferences(userID)

	queue := newFakeQueue()
	ss := newTestScheduler(t, prefs, queue, &fakeLedger{})

	sent := &models.Notification{UserID: userID, Status: models.NotificationStatusSent}
	require.NoError(t, queue.Create(context.Background(), sent))

	_, err := ss.HandleRescheduling(context.Background(), sent.ID.Hex(), models.RescheduleReasonOther)
	require.Error(t, err)

	serviceErr, ok := utils.GetServiceError(err)
	require.True(t, ok)
	assert.Equal(t, "CONFLICT", serviceErr.Code)
}

func TestComputeOptimalTimesIgnoresUnopenedRecords(t *testing.T) {
	opened := utils.TimePtr(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))

	times := ComputeOptimalTimes([]models.DeliveryRecord{
		{OpenedAt: opened},
		{OpenedAt: nil},
		{OpenedAt: opened},
	})

	require.Len(t, times, 1)
	assert.Equal(t, 9, times[0].Hour)
	assert.Equal(t, float64(2), times[0].EngagementScore)
	assert.Equal(t, "morning_routine", times[0].Context)
}
