package services

import (
	"context"
	"fmt"
	"time"

	"elaro/models"
	"elaro/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// deliveryQueue is satisfied by repositories.NotificationRepository.
type deliveryQueue interface {
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	Update(ctx context.Context, id string, updates bson.M) error
	GetScheduled(ctx context.Context, req models.GetScheduledRequest) ([]models.Notification, int64, error)
	Cancel(ctx context.Context, id, userID string) error
	CancelAll(ctx context.Context, userID string) (int64, error)
}

// ledgerWriter is the append side of the history ledger.
type ledgerWriter interface {
	Create(ctx context.Context, record *models.DeliveryRecord) error
}

// userDirectory is satisfied by repositories.UserRepository.
type userDirectory interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// pusher is satisfied by utils.PushProvider.
type pusher interface {
	SendPushNotification(ctx context.Context, deviceToken string, notification utils.PushNotification) (*utils.NotificationResult, error)
	SendSMS(ctx context.Context, sms utils.SMSMessage) (*utils.NotificationResult, error)
}

// inAppBroadcaster pushes a notification over the realtime channel. Returns
// false when the user has no live connection.
type inAppBroadcaster interface {
	Publish(userID string, notification *models.Notification) bool
}

// DeliveryService executes due notifications: it re-checks preferences at
// send time, dispatches over the enabled channels, and appends the ledger
// record. Everything before this point is intent; this is where delivery
// actually happens.
type DeliveryService struct {
	notificationRepo deliveryQueue
	deliveryRepo     ledgerWriter
	userRepo         userDirectory
	prefService      *PreferenceService
	schedService     *SchedulingService
	provider         pusher
	broadcaster      inAppBroadcaster

	now func() time.Time
}

func NewDeliveryService(
	notificationRepo deliveryQueue,
	deliveryRepo ledgerWriter,
	userRepo userDirectory,
	prefService *PreferenceService,
	schedService *SchedulingService,
	provider pusher,
	broadcaster inAppBroadcaster,
) *DeliveryService {
	return &DeliveryService{
		notificationRepo: notificationRepo,
		deliveryRepo:     deliveryRepo,
		userRepo:         userRepo,
		prefService:      prefService,
		schedService:     schedService,
		provider:         provider,
		broadcaster:      broadcaster,
		now:              time.Now,
	}
}

// Send delivers one due notification. Preferences are re-checked here because
// they may have changed between scheduling and delivery.
func (ds *DeliveryService) Send(ctx context.Context, notification *models.Notification) (*models.SendResult, error) {
	id := notification.ID.Hex()
	userID := notification.UserID.Hex()

	prefs, err := ds.prefService.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Preferences flipped since scheduling: cancel, don't fail.
	if !prefs.MasterToggle {
		if err := ds.markCancelled(ctx, id, "notifications disabled at send time"); err != nil {
			return nil, err
		}
		return &models.SendResult{Success: false, NotificationID: id, Error: "notifications disabled"}, nil
	}
	if enabled, known := prefs.Types[notification.Type]; known && !enabled {
		if err := ds.markCancelled(ctx, id, "type disabled at send time"); err != nil {
			return nil, err
		}
		return &models.SendResult{Success: false, NotificationID: id, Error: "type disabled"}, nil
	}

	now := ds.now()

	// DND or a quiet window that moved onto the slot: push the send out
	// instead of delivering into it. Urgent notifications go through anyway.
	if notification.Priority != "urgent" && (prefs.DoNotDisturb || IsQuietTime(prefs.QuietHours, now)) {
		rescheduled, err := ds.schedService.HandleRescheduling(ctx, id, models.RescheduleReasonQuietHours)
		if err != nil {
			return nil, err
		}
		logrus.Debugf("Deferred notification %s to %s at send time", id, rescheduled.ScheduledFor.Format(time.RFC3339))
		return &models.SendResult{Success: false, NotificationID: id, Error: "deferred to quiet hours end"}, nil
	}

	user, err := ds.userRepo.GetByID(ctx, userID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			if err := ds.markFailed(ctx, id, "user not found"); err != nil {
				return nil, err
			}
			return &models.SendResult{Success: false, NotificationID: id, Error: "user not found"}, nil
		}
		return nil, utils.WrapDatabaseError(err, "get user")
	}

	if err := ds.notificationRepo.Update(ctx, id, bson.M{"status": models.NotificationStatusSending}); err != nil {
		return nil, utils.WrapDatabaseError(err, "mark sending")
	}

	delivered, failure := ds.dispatch(ctx, notification, prefs, user)

	if !delivered {
		// Missing device token is terminal, not retryable.
		if err := ds.markFailed(ctx, id, failure); err != nil {
			return nil, err
		}
		return &models.SendResult{Success: false, NotificationID: id, Error: failure}, nil
	}

	sentAt := ds.now()
	updates := bson.M{
		"status": models.NotificationStatusSent,
		"sentAt": sentAt,
	}
	if err := ds.notificationRepo.Update(ctx, id, updates); err != nil {
		return nil, utils.WrapDatabaseError(err, "mark sent")
	}

	record := &models.DeliveryRecord{
		NotificationID: notification.ID,
		UserID:         notification.UserID,
		Type:           notification.Type,
		Title:          notification.Title,
		Body:           notification.Body,
		Priority:       notification.Priority,
		SentAt:         sentAt,
	}
	if err := ds.deliveryRepo.Create(ctx, record); err != nil {
		// The push already went out. Log and keep the queue row as sent.
		logrus.Errorf("Failed to append delivery record for notification %s: %v", id, err)
	}

	return &models.SendResult{Success: true, NotificationID: id}, nil
}

// dispatch fans the notification out over its enabled channels. Push is the
// primary channel; a push failure fails the send. SMS and in-app are best
// effort on top.
func (ds *DeliveryService) dispatch(ctx context.Context, notification *models.Notification, prefs *models.NotificationPreference, user *models.User) (bool, string) {
	channels := notification.Channels
	delivered := false

	if channels.Push {
		if user.DeviceToken == "" {
			return false, "no device token registered"
		}

		push := utils.PushNotification{
			Title: notification.Title,
			Body:  notification.Body,
			Data:  flattenData(notification),
		}
		if prefs.Advanced.Sound {
			push.Sound = "default"
		}
		if !prefs.Advanced.Preview {
			push.Body = "You have a new notification"
		}

		result, err := ds.provider.SendPushNotification(ctx, user.DeviceToken, push)
		if err != nil {
			return false, fmt.Sprintf("push delivery failed: %v", err)
		}
		if !result.Success {
			return false, result.Error
		}
		delivered = true
	}

	if channels.SMS && notification.Priority == "urgent" && user.Phone != "" {
		// Keep the SMS inside a single 160-char segment.
		sms := utils.SMSMessage{
			To:      user.Phone,
			Message: utils.TruncateString(fmt.Sprintf("%s: %s", notification.Title, notification.Body), 160),
		}
		if _, err := ds.provider.SendSMS(ctx, sms); err != nil {
			logrus.Warnf("SMS delivery failed for notification %s: %v", notification.ID.Hex(), err)
		} else {
			delivered = true
		}
	}

	if channels.InApp && ds.broadcaster != nil {
		if ds.broadcaster.Publish(notification.UserID.Hex(), notification) {
			delivered = true
		}
	}

	// Local channel rows are fetched by the client; reaching the queue is
	// delivery enough.
	if channels.Local {
		delivered = true
	}

	if !delivered {
		return false, "no deliverable channel"
	}
	return true, ""
}

// ScheduleLocal validates a trigger for on-device scheduling. Location
// triggers are rejected; the mobile OS geofencing APIs are not plumbed
// through this service.
func (ds *DeliveryService) ScheduleLocal(ctx context.Context, notification *models.Notification, trigger models.LocalTrigger) error {
	switch trigger.Type {
	case models.LocalTriggerDate:
		if trigger.FireAt.IsZero() {
			return utils.NewBadRequestError("date trigger requires fireAt")
		}
	case models.LocalTriggerInterval:
		if trigger.Interval < time.Minute {
			return utils.NewBadRequestError("interval trigger requires an interval of at least one minute")
		}
	case models.LocalTriggerLocation:
		logrus.Warnf("Rejected location trigger for user %s", notification.UserID.Hex())
		return utils.NewBadRequestError("location triggers are not supported")
	default:
		return utils.NewBadRequestError("unknown trigger type")
	}

	notification.Channels = models.NotificationChannels{Local: true}
	if trigger.Type == models.LocalTriggerDate {
		notification.ScheduledFor = trigger.FireAt
	}

	return ds.schedService.ScheduleWithSmartTiming(ctx, notification, ScheduleOptions{At: &notification.ScheduledFor})
}

// ListScheduled pages a user's pending notifications, soonest first.
func (ds *DeliveryService) ListScheduled(ctx context.Context, req models.GetScheduledRequest) ([]models.Notification, int64, error) {
	notifications, total, err := ds.notificationRepo.GetScheduled(ctx, req)
	if err != nil {
		return nil, 0, utils.WrapDatabaseError(err, "list scheduled notifications")
	}
	return notifications, total, nil
}

// Cancel removes one pending notification. Sent notifications are immutable.
func (ds *DeliveryService) Cancel(ctx context.Context, id, userID string) error {
	err := ds.notificationRepo.Cancel(ctx, id, userID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return utils.NewNotificationNotFoundError()
		}
		return utils.WrapDatabaseError(err, "cancel notification")
	}
	return nil
}

// CancelAll cancels every pending notification for a user.
func (ds *DeliveryService) CancelAll(ctx context.Context, userID string) (int64, error) {
	count, err := ds.notificationRepo.CancelAll(ctx, userID)
	if err != nil {
		return 0, utils.WrapDatabaseError(err, "cancel notifications")
	}
	return count, nil
}

func (ds *DeliveryService) markCancelled(ctx context.Context, id, reason string) error {
	updates := bson.M{
		"status":    models.NotificationStatusCancelled,
		"lastError": reason,
	}
	if err := ds.notificationRepo.Update(ctx, id, updates); err != nil {
		return utils.WrapDatabaseError(err, "cancel notification")
	}
	return nil
}

func (ds *DeliveryService) markFailed(ctx context.Context, id, reason string) error {
	updates := bson.M{
		"status":    models.NotificationStatusFailed,
		"lastError": reason,
	}
	if err := ds.notificationRepo.Update(ctx, id, updates); err != nil {
		return utils.WrapDatabaseError(err, "mark notification failed")
	}
	return nil
}

// flattenData converts the free-form payload into the string map FCM accepts.
func flattenData(notification *models.Notification) map[string]string {
	data := map[string]string{
		"notificationId": notification.ID.Hex(),
		"type":           notification.Type,
	}
	for k, v := range notification.Data {
		data[k] = fmt.Sprintf("%v", v)
	}
	return data
}
