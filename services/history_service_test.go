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
	"go.mongodb.org/mongo-driver/mongo"
)

type fakeHistoryStore struct {
	records map[string]*models.DeliveryRecord
	order   []string

	listErr   error
	actionIDs map[string]bool

	markedRead    []string
	markedAllFor  []string
	deleted       []string
	deletedBefore *time.Time
}

func newFakeHistoryStore(records ...*models.DeliveryRecord) *fakeHistoryStore {
	store := &fakeHistoryStore{
		records:   make(map[string]*models.DeliveryRecord),
		actionIDs: make(map[string]bool),
	}
	for _, record := range records {
		if record.ID.IsZero() {
			record.ID = primitive.NewObjectID()
		}
		store.records[record.ID.Hex()] = record
		store.order = append(store.order, record.ID.Hex())
	}
	return store
}

func (f *fakeHistoryStore) GetByID(ctx context.Context, id string) (*models.DeliveryRecord, error) {
	record, ok := f.records[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return record, nil
}

func (f *fakeHistoryStore) List(ctx context.Context, req models.GetHistoryRequest) ([]models.DeliveryRecord, int64, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var out []models.DeliveryRecord
	for _, id := range f.order {
		record := f.records[id]
		if record.UserID.Hex() != req.UserID {
			continue
		}
		if req.UnreadOnly && record.IsRead {
			continue
		}
		out = append(out, *record)
	}
	return out, int64(len(out)), nil
}

func (f *fakeHistoryStore) MarkRead(ctx context.Context, id string) error {
	record, ok := f.records[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	record.IsRead = true
	f.markedRead = append(f.markedRead, id)
	return nil
}

func (f *fakeHistoryStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	f.markedAllFor = append(f.markedAllFor, userID)
	var count int64
	for _, record := range f.records {
		if record.UserID.Hex() == userID && !record.IsRead {
			record.IsRead = true
			count++
		}
	}
	return count, nil
}

func (f *fakeHistoryStore) MarkDelivered(ctx context.Context, id string) error {
	record, ok := f.records[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	now := time.Now()
	record.DeliveredAt = &now
	return nil
}

func (f *fakeHistoryStore) Delete(ctx context.Context, id string) error {
	if _, ok := f.records[id]; !ok {
		return mongo.ErrNoDocuments
	}
	delete(f.records, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeHistoryStore) DeleteOlderThan(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	f.deletedBefore = &cutoff
	var count int64
	for id, record := range f.records {
		if record.UserID.Hex() == userID && record.SentAt.Before(cutoff) {
			delete(f.records, id)
			count++
		}
	}
	return count, nil
}

func (f *fakeHistoryStore) RecordAction(ctx context.Context, action *models.OfflineAction) error {
	if f.actionIDs[action.ActionID] {
		return mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}
	}
	f.actionIDs[action.ActionID] = true
	return nil
}

func newHistoryService(store *fakeHistoryStore) *HistoryService {
	// nil Redis client: the cache layer is a no-op, which is also the
	// degraded mode the service must survive.
	hs := NewHistoryService(store, nil, config.DefaultHistoryConfig())
	hs.now = fixedClock(baseNow)
	return hs
}

func historyRecord(userID primitive.ObjectID, sentAt time.Time) *models.DeliveryRecord {
	return &models.DeliveryRecord{
		ID:     primitive.NewObjectID(),
		UserID: userID,
		Type:   models.NotificationTypeReminder,
		Title:  "Study time",
		SentAt: sentAt,
	}
}

func TestHistoryListFiltersUnread(t *testing.T) {
	userID := primitive.NewObjectID()
	read := historyRecord(userID, baseNow.Add(-time.Hour))
	read.IsRead = true
	unread := historyRecord(userID, baseNow.Add(-2*time.Hour))
	other := historyRecord(primitive.NewObjectID(), baseNow)

	hs := newHistoryService(newFakeHistoryStore(read, unread, other))

	records, total, err := hs.List(context.Background(), models.GetHistoryRequest{UserID: userID.Hex(), UnreadOnly: true})
	require.NoError(t, err)

	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, unread.ID, records[0].ID)
}

func TestHistoryListDefaultsPagination(t *testing.T) {
	userID := primitive.NewObjectID()
	hs := newHistoryService(newFakeHistoryStore(historyRecord(userID, baseNow)))

	_, total, err := hs.List(context.Background(), models.GetHistoryRequest{UserID: userID.Hex(), Page: 0, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestHistoryListStoreFailureWithoutCache(t *testing.T) {
	store := newFakeHistoryStore()
	store.listErr = assert.AnError
	hs := newHistoryService(store)

	_, _, err := hs.List(context.Background(), models.GetHistoryRequest{UserID: primitive.NewObjectID().Hex()})
	require.Error(t, err)

	serviceErr, ok := utils.GetServiceError(err)
	require.True(t, ok)
	assert.Equal(t, utils.ErrCodeDatabase, serviceErr.Code)
}

func TestMarkReadEnforcesOwnership(t *testing.T) {
	owner := primitive.NewObjectID()
	record := historyRecord(owner, baseNow)
	store := newFakeHistoryStore(record)
	hs := newHistoryService(store)

	err := hs.MarkRead(context.Background(), record.ID.Hex(), primitive.NewObjectID().Hex())
	require.Error(t, err)
	serviceErr, ok := utils.GetServiceError(err)
	require.True(t, ok)
	assert.Equal(t, "FORBIDDEN", serviceErr.Code)
	assert.Empty(t, store.markedRead)

	require.NoError(t, hs.MarkRead(context.Background(), record.ID.Hex(), owner.Hex()))
	assert.True(t, record.IsRead)
}

func TestMarkReadUnknownRecord(t *testing.T) {
	hs := newHistoryService(newFakeHistoryStore())

	err := hs.MarkRead(context.Background(), primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex())
	require.Error(t, err)
	serviceErr, ok := utils.GetServiceError(err)
	require.True(t, ok)
	assert.Equal(t, utils.ErrCodeNotFound, serviceErr.Code)
}

func TestDeleteEnforcesOwnership(t *testing.T) {
	owner := primitive.NewObjectID()
	record := historyRecord(owner, baseNow)
	store := newFakeHistoryStore(record)
	hs := newHistoryService(store)

	err := hs.Delete(context.Background(), record.ID.Hex(), primitive.NewObjectID().Hex())
	require.Error(t, err)
	assert.Empty(t, store.deleted)

	require.NoError(t, hs.Delete(context.Background(), record.ID.Hex(), owner.Hex()))
	assert.Len(t, store.deleted, 1)
}

func TestCleanupUsesConfiguredRetention(t *testing.T) {
	userID := primitive.NewObjectID()
	old := historyRecord(userID, baseNow.AddDate(0, 0, -30))
	recent := historyRecord(userID, baseNow.AddDate(0, 0, -1))
	store := newFakeHistoryStore(old, recent)
	hs := newHistoryService(store)

	count, err := hs.CleanupOlderThan(context.Background(), userID.Hex(), 0)
	require.NoError(t, err)

	assert.Equal(t, int64(1), count)
	require.NotNil(t, store.deletedBefore)
	assert.Equal(t, baseNow.AddDate(0, 0, -config.DefaultHistoryConfig().RetentionDays), *store.deletedBefore)
}

func TestSyncAppliesActionsOnce(t *testing.T) {
	userID := primitive.NewObjectID()
	readTarget := historyRecord(userID, baseNow)
	deleteTarget := historyRecord(userID, baseNow)
	store := newFakeHistoryStore(readTarget, deleteTarget)
	hs := newHistoryService(store)

	actions := []models.OfflineAction{
		{ActionID: "a1", Action: models.OfflineActionMarkRead, RecordID: readTarget.ID.Hex()},
		{ActionID: "a2", Action: models.OfflineActionDelete, RecordID: deleteTarget.ID.Hex()},
	}

	result, err := hs.Sync(context.Background(), userID.Hex(), models.SyncHistoryRequest{Actions: actions})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, result.Applied)
	assert.Empty(t, result.Duplicates)
	assert.Empty(t, result.Failed)

	// Replaying the same batch reports duplicates, mutates nothing.
	result, err = hs.Sync(context.Background(), userID.Hex(), models.SyncHistoryRequest{Actions: actions})
	require.NoError(t, err)
	assert.Empty(t, result.Applied)
	assert.Equal(t, []string{"a1", "a2"}, result.Duplicates)
}

func TestSyncFailedActionDoesNotStopBatch(t *testing.T) {
	userID := primitive.NewObjectID()
	target := historyRecord(userID, baseNow)
	store := newFakeHistoryStore(target)
	hs := newHistoryService(store)

	actions := []models.OfflineAction{
		{ActionID: "a1", Action: models.OfflineActionMarkRead, RecordID: primitive.NewObjectID().Hex()},
		{ActionID: "a2", Action: "archive", RecordID: target.ID.Hex()},
		{ActionID: "a3", Action: models.OfflineActionMarkRead, RecordID: target.ID.Hex()},
	}

	result, err := hs.Sync(context.Background(), userID.Hex(), models.SyncHistoryRequest{Actions: actions})
	require.NoError(t, err)

	assert.Equal(t, []string{"a3"}, result.Applied)
	assert.ElementsMatch(t, []string{"a1", "a2"}, result.Failed)
	assert.True(t, target.IsRead)
}
