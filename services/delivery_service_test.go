package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"elaro/config"
	"elaro/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type deliveryFixture struct {
	queue       *fakeQueue
	ledger      *fakeLedger
	users       *fakeUserDir
	provider    *fakePusher
	broadcaster *fakeBroadcaster
	service     *DeliveryService
}

func newDeliveryFixture(t *testing.T, prefs *models.NotificationPreference, users ...*models.User) *deliveryFixture {
	t.Helper()

	f := &deliveryFixture{
		queue:       newFakeQueue(),
		ledger:      &fakeLedger{},
		users:       newFakeUserDir(users...),
		provider:    &fakePusher{},
		broadcaster: &fakeBroadcaster{},
	}

	prefService := NewPreferenceService(&fakePrefStore{prefs: prefs})
	schedService := NewSchedulingService(f.queue, f.ledger, prefService, config.DefaultSchedulingConfig())
	schedService.now = fixedClock(baseNow)
	schedService.jitter = noJitter

	f.service = NewDeliveryService(f.queue, f.ledger, f.users, prefService, schedService, f.provider, f.broadcaster)
	f.service.now = fixedClock(baseNow)
	return f
}

func pendingPush(userID primitive.ObjectID) *models.Notification {
	return &models.Notification{
		UserID:       userID,
		Type:         models.NotificationTypeReminder,
		Title:        "Study time",
		Body:         "Your algorithms review is due",
		Status:       models.NotificationStatusPending,
		Priority:     "normal",
		Channels:     models.NotificationChannels{Push: true},
		ScheduledFor: baseNow,
	}
}

func TestSendDeliversPushAndAppendsLedger(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), DeviceToken: "token-1", IsActive: true}
	f := newDeliveryFixture(t, models.DefaultPreferences(user.ID), user)

	notification := pendingPush(user.ID)
	require.NoError(t, f.queue.Create(context.Background(), notification))

	result, err := f.service.Send(context.Background(), notification)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"token-1"}, f.provider.tokens)

	stored, err := f.queue.GetByID(context.Background(), notification.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.NotificationStatusSent, stored.Status)

	require.Len(t, f.ledger.records, 1)
	assert.Equal(t, notification.ID, f.ledger.records[0].NotificationID)
	assert.Equal(t, baseNow, f.ledger.records[0].SentAt)
}

func TestSendCancelsWhenMasterToggleFlippedOff(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), DeviceToken: "token-1"}
	prefs := models.DefaultPreferences(user.ID)
	prefs.MasterToggle = false
	f := newDeliveryFixture(t, prefs, user)

	notification := pendingPush(user.ID)
	require.NoError(t, f.queue.Create(context.Background(), notification))

	result, err := f.service.Send(context.Background(), notification)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Empty(t, f.provider.tokens)

	stored, err := f.queue.GetByID(context.Background(), notification.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.NotificationStatusCancelled, stored.Status)
}

func TestSendMissingDeviceTokenIsTerminal(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), DeviceToken: ""}
	f := newDeliveryFixture(t, models.DefaultPreferences(user.ID), user)

	notification := pendingPush(user.ID)
	require.NoError(t, f.queue.Create(context.Background(), notification))

	result, err := f.service.Send(context.Background(), notification)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "no device token registered", result.Error)

	stored, err := f.queue.GetByID(context.Background(), notification.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.NotificationStatusFailed, stored.Status)
	assert.Empty(t, f.ledger.records)
}

func TestSendUnknownUserIsTerminal(t *testing.T) {
	userID := primitive.NewObjectID()
	f := newDeliveryFixture(t, models.DefaultPreferences(userID))

	notification := pendingPush(userID)
	require.NoError(t, f.queue.Create(context.Background(), notification))

	result, err := f.service.Send(context.Background(), notification)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "user not found", result.Error)
}

func TestSendDefersDuringQuietHours(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), DeviceToken: "token-1"}
	f := newDeliveryFixture(t, models.DefaultPreferences(user.ID), user)
	// 23:00: inside the default 22:00-08:00 window.
	late := time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC)
	f.service.now = fixedClock(late)
	f.service.schedService.now = fixedClock(late)

	notification := pendingPush(user.ID)
	require.NoError(t, f.queue.Create(context.Background(), notification))

	result, err := f.service.Send(context.Background(), notification)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Empty(t, f.provider.tokens)

	stored, err := f.queue.GetByID(context.Background(), notification.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.NotificationStatusPending, stored.Status)
	assert.Equal(t, time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC), stored.ScheduledFor)
}

func TestSendUrgentBypassesDoNotDisturb(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), DeviceToken: "token-1"}
	prefs := models.DefaultPreferences(user.ID)
	prefs.DoNotDisturb = true
	f := newDeliveryFixture(t, prefs, user)

	notification := pendingPush(user.ID)
	notification.Priority = "urgent"
	require.NoError(t, f.queue.Create(context.Background(), notification))

	result, err := f.service.Send(context.Background(), notification)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Len(t, f.provider.pushed, 1)
}

func TestSendHidesBodyWhenPreviewDisabled(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), DeviceToken: "token-1"}
	prefs := models.DefaultPreferences(user.ID)
	prefs.Advanced.Preview = false
	f := newDeliveryFixture(t, prefs, user)

	notification := pendingPush(user.ID)
	require.NoError(t, f.queue.Create(context.Background(), notification))

	_, err := f.service.Send(context.Background(), notification)
	require.NoError(t, err)

	require.Len(t, f.provider.pushed, 1)
	assert.Equal(t, "You have a new notification", f.provider.pushed[0].Body)
}

func TestSendSMSOnlyForUrgentWithPhone(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), DeviceToken: "token-1", Phone: "+15550100"}
	f := newDeliveryFixture(t, models.DefaultPreferences(user.ID), user)

	normal := pendingPush(user.ID)
	normal.Channels.SMS = true
	require.NoError(t, f.queue.Create(context.Background(), normal))
	_, err := f.service.Send(context.Background(), normal)
	require.NoError(t, err)
	assert.Empty(t, f.provider.smsSent)

	urgent := pendingPush(user.ID)
	urgent.Channels.SMS = true
	urgent.Priority = "urgent"
	require.NoError(t, f.queue.Create(context.Background(), urgent))
	_, err = f.service.Send(context.Background(), urgent)
	require.NoError(t, err)
	require.Len(t, f.provider.smsSent, 1)
	assert.Equal(t, user.Phone, f.provider.smsSent[0].To)
}

func TestSendSMSStaysWithinOneSegment(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), DeviceToken: "token-1", Phone: "+15550100"}
	f := newDeliveryFixture(t, models.DefaultPreferences(user.ID), user)

	urgent := pendingPush(user.ID)
	urgent.Channels.SMS = true
	urgent.Priority = "urgent"
	urgent.Body = strings.Repeat("deadline approaching ", 20)
	require.NoError(t, f.queue.Create(context.Background(), urgent))

	_, err := f.service.Send(context.Background(), urgent)
	require.NoError(t, err)

	require.Len(t, f.provider.smsSent, 1)
	message := f.provider.smsSent[0].Message
	assert.LessOrEqual(t, len(message), 160)
	assert.True(t, strings.HasSuffix(message, "..."))
}

func TestSendInAppDeliversWhenUserOnline(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID()}
	f := newDeliveryFixture(t, models.DefaultPreferences(user.ID), user)
	f.broadcaster.online = true

	notification := pendingPush(user.ID)
	notification.Channels = models.NotificationChannels{InApp: true}
	require.NoError(t, f.queue.Create(context.Background(), notification))

	result, err := f.service.Send(context.Background(), notification)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{user.ID.Hex()}, f.broadcaster.published)
}

func TestSendInAppFailsWhenUserOffline(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID()}
	f := newDeliveryFixture(t, models.DefaultPreferences(user.ID), user)

	notification := pendingPush(user.ID)
	notification.Channels = models.NotificationChannels{InApp: true}
	require.NoError(t, f.queue.Create(context.Background(), notification))

	result, err := f.service.Send(context.Background(), notification)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "no deliverable channel", result.Error)
}

func TestScheduleLocalRejectsLocationTrigger(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID()}
	f := newDeliveryFixture(t, models.DefaultPreferences(user.ID), user)

	notification := pendingPush(user.ID)
	err := f.service.ScheduleLocal(context.Background(), notification, models.LocalTrigger{Type: models.LocalTriggerLocation})
	require.Error(t, err)
	assert.Empty(t, f.queue.created)
}

func TestScheduleLocalDateTrigger(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID()}
	f := newDeliveryFixture(t, models.DefaultPreferences(user.ID), user)

	fireAt := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	notification := pendingPush(user.ID)
	err := f.service.ScheduleLocal(context.Background(), notification, models.LocalTrigger{Type: models.LocalTriggerDate, FireAt: fireAt})
	require.NoError(t, err)

	require.Len(t, f.queue.created, 1)
	assert.Equal(t, fireAt, f.queue.created[0].ScheduledFor)
	assert.True(t, f.queue.created[0].Channels.Local)
}

func TestScheduleLocalIntervalTooShort(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID()}
	f := newDeliveryFixture(t, models.DefaultPreferences(user.ID), user)

	notification := pendingPush(user.ID)
	err := f.service.ScheduleLocal(context.Background(), notification, models.LocalTrigger{Type: models.LocalTriggerInterval, Interval: 30 * time.Second})
	require.Error(t, err)
}

func TestCancelUnknownNotification(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID()}
	f := newDeliveryFixture(t, models.DefaultPreferences(user.ID), user)

	err := f.service.Cancel(context.Background(), primitive.NewObjectID().Hex(), user.ID.Hex())
	require.Error(t, err)
}

func TestCancelAllOnlyTouchesPending(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID()}
	f := newDeliveryFixture(t, models.DefaultPreferences(user.ID), user)

	pending := pendingPush(user.ID)
	require.NoError(t, f.queue.Create(context.Background(), pending))
	sent := pendingPush(user.ID)
	sent.Status = models.NotificationStatusSent
	require.NoError(t, f.queue.Create(context.Background(), sent))

	count, err := f.service.CancelAll(context.Background(), user.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
