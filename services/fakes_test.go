package services

import (
	"context"
	"sync"
	"time"

	"elaro/models"
	"elaro/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Shared in-memory fakes for the service tests. Each fake satisfies the
// store interface of the service under test.

type fakePrefStore struct {
	prefs  *models.NotificationPreference
	getErr error

	upserted  *models.NotificationPreference
	upsertErr error
}

func (f *fakePrefStore) GetByUserID(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.prefs == nil {
		return nil, mongo.ErrNoDocuments
	}
	return f.prefs, nil
}

func (f *fakePrefStore) Upsert(ctx context.Context, prefs *models.NotificationPreference) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = prefs
	f.prefs = prefs
	return nil
}

type fakeQueue struct {
	mu      sync.Mutex
	created []*models.Notification
	byID    map[string]*models.Notification
	updates map[string]bson.M

	createErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		byID:    make(map[string]*models.Notification),
		updates: make(map[string]bson.M),
	}
}

func (f *fakeQueue) Create(ctx context.Context, notification *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if notification.ID.IsZero() {
		notification.ID = primitive.NewObjectID()
	}
	f.created = append(f.created, notification)
	f.byID[notification.ID.Hex()] = notification
	return nil
}

func (f *fakeQueue) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	notification, ok := f.byID[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	copied := *notification
	return &copied, nil
}

func (f *fakeQueue) Update(ctx context.Context, id string, updates bson.M) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = updates
	if notification, ok := f.byID[id]; ok {
		if status, ok := updates["status"].(string); ok {
			notification.Status = status
		}
		if scheduledFor, ok := updates["scheduledFor"].(time.Time); ok {
			notification.ScheduledFor = scheduledFor
		}
	}
	return nil
}

func (f *fakeQueue) GetScheduled(ctx context.Context, req models.GetScheduledRequest) ([]models.Notification, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.created {
		if n.UserID.Hex() == req.UserID && n.Status == models.NotificationStatusPending {
			out = append(out, *n)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeQueue) Cancel(ctx context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	notification, ok := f.byID[id]
	if !ok || notification.UserID.Hex() != userID || notification.Status != models.NotificationStatusPending {
		return mongo.ErrNoDocuments
	}
	notification.Status = models.NotificationStatusCancelled
	return nil
}

func (f *fakeQueue) CancelAll(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, n := range f.created {
		if n.UserID.Hex() == userID && n.Status == models.NotificationStatusPending {
			n.Status = models.NotificationStatusCancelled
			count++
		}
	}
	return count, nil
}

type fakeLedger struct {
	sentToday  int64
	countErr   error
	lastSent   *models.DeliveryRecord
	opened     []models.DeliveryRecord
	openedErr  error
	records    []*models.DeliveryRecord
	createErr  error
	sentInWeek int64
	readInWeek int64
}

func (f *fakeLedger) CountSentSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.sentToday, nil
}

func (f *fakeLedger) GetLastSent(ctx context.Context, userID string) (*models.DeliveryRecord, error) {
	if f.lastSent == nil {
		return nil, mongo.ErrNoDocuments
	}
	return f.lastSent, nil
}

func (f *fakeLedger) GetOpenedSince(ctx context.Context, userID string, since time.Time) ([]models.DeliveryRecord, error) {
	if f.openedErr != nil {
		return nil, f.openedErr
	}
	return f.opened, nil
}

func (f *fakeLedger) Create(ctx context.Context, record *models.DeliveryRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeLedger) CountBetween(ctx context.Context, userID string, from, to time.Time) (int64, int64, error) {
	return f.sentInWeek, f.readInWeek, nil
}

type fakeUserDir struct {
	users map[string]*models.User
}

func newFakeUserDir(users ...*models.User) *fakeUserDir {
	dir := &fakeUserDir{users: make(map[string]*models.User)}
	for _, u := range users {
		dir.users[u.ID.Hex()] = u
	}
	return dir
}

func (f *fakeUserDir) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return user, nil
}

func (f *fakeUserDir) GetByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if user, ok := f.users[id]; ok {
			out = append(out, *user)
		}
	}
	return out, nil
}

func (f *fakeUserDir) GetReportEligible(ctx context.Context, activeSince time.Time) ([]models.User, error) {
	var out []models.User
	for _, user := range f.users {
		if user.IsActive && user.IsPaid() && !user.LastActiveAt.Before(activeSince) {
			out = append(out, *user)
		}
	}
	return out, nil
}

type fakePusher struct {
	pushResults []*utils.NotificationResult
	pushErr     error
	pushed      []utils.PushNotification
	tokens      []string

	smsSent []utils.SMSMessage
	smsErr  error
}

func (f *fakePusher) SendPushNotification(ctx context.Context, deviceToken string, notification utils.PushNotification) (*utils.NotificationResult, error) {
	f.tokens = append(f.tokens, deviceToken)
	f.pushed = append(f.pushed, notification)
	if f.pushErr != nil {
		return &utils.NotificationResult{Success: false, Error: f.pushErr.Error()}, f.pushErr
	}
	return &utils.NotificationResult{Success: true, MessageID: "msg-1"}, nil
}

func (f *fakePusher) SendSMS(ctx context.Context, sms utils.SMSMessage) (*utils.NotificationResult, error) {
	if f.smsErr != nil {
		return &utils.NotificationResult{Success: false, Error: f.smsErr.Error()}, f.smsErr
	}
	f.smsSent = append(f.smsSent, sms)
	return &utils.NotificationResult{Success: true, MessageID: "sms-1"}, nil
}

func (f *fakePusher) SendPushToMultipleDevices(ctx context.Context, deviceTokens []string, notification utils.PushNotification) ([]*utils.NotificationResult, error) {
	f.tokens = append(f.tokens, deviceTokens...)
	f.pushed = append(f.pushed, notification)
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	if f.pushResults != nil {
		return f.pushResults, nil
	}
	results := make([]*utils.NotificationResult, len(deviceTokens))
	for i := range deviceTokens {
		results[i] = &utils.NotificationResult{Success: true, MessageID: "msg-1"}
	}
	return results, nil
}

type fakeBroadcaster struct {
	published []string
	online    bool
}

func (f *fakeBroadcaster) Publish(userID string, notification *models.Notification) bool {
	f.published = append(f.published, userID)
	return f.online
}

// fixedClock returns a now func pinned to t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// noJitter pins the jitter to zero.
func noJitter() time.Duration { return 0 }
