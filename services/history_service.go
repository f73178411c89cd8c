package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"elaro/config"
	"elaro/models"
	"elaro/utils"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
)

// historyStore is satisfied by repositories.DeliveryRepository.
type historyStore interface {
	GetByID(ctx context.Context, id string) (*models.DeliveryRecord, error)
	List(ctx context.Context, req models.GetHistoryRequest) ([]models.DeliveryRecord, int64, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	MarkDelivered(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	DeleteOlderThan(ctx context.Context, userID string, cutoff time.Time) (int64, error)
	RecordAction(ctx context.Context, action *models.OfflineAction) error
}

type historyPage struct {
	Records []models.DeliveryRecord `json:"records"`
	Total   int64                   `json:"total"`
}

// HistoryService serves the notification history surface. Reads go through a
// short Redis cache; writes invalidate it. A stale cache entry beats an
// error page, so cache failures degrade to the store and stale reads.
type HistoryService struct {
	deliveryRepo historyStore
	redisClient  *redis.Client
	cfg          config.HistoryConfig

	now func() time.Time
}

func NewHistoryService(deliveryRepo historyStore, redisClient *redis.Client, cfg config.HistoryConfig) *HistoryService {
	return &HistoryService{
		deliveryRepo: deliveryRepo,
		redisClient:  redisClient,
		cfg:          cfg,
		now:          time.Now,
	}
}

// List returns a page of history. First page per filter is cached for a few
// minutes; when the store is down we serve the cached page past its TTL
// rather than failing.
func (hs *HistoryService) List(ctx context.Context, req models.GetHistoryRequest) ([]models.DeliveryRecord, int64, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	cacheKey := hs.cacheKey(req)

	if cached := hs.readCache(ctx, cacheKey); cached != nil {
		return cached.Records, cached.Total, nil
	}

	records, total, err := hs.deliveryRepo.List(ctx, req)
	if err != nil {
		// Store unavailable: fall back to the stale copy if one survives.
		if stale := hs.readCache(ctx, hs.staleKey(cacheKey)); stale != nil {
			logrus.Warnf("History read failed for user %s, serving stale cache: %v", req.UserID, err)
			return stale.Records, stale.Total, nil
		}
		return nil, 0, utils.WrapDatabaseError(err, "list history")
	}

	hs.writeCache(ctx, cacheKey, historyPage{Records: records, Total: total})

	return records, total, nil
}

// MarkRead marks one record read after checking it belongs to the caller.
func (hs *HistoryService) MarkRead(ctx context.Context, recordID, userID string) error {
	record, err := hs.deliveryRepo.GetByID(ctx, recordID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return utils.NewNotFoundError("Delivery record")
		}
		return utils.WrapDatabaseError(err, "get delivery record")
	}
	if record.UserID.Hex() != userID {
		return utils.NewForbiddenError("record belongs to another user")
	}

	if err := hs.deliveryRepo.MarkRead(ctx, recordID); err != nil {
		return utils.WrapDatabaseError(err, "mark record read")
	}

	hs.invalidate(ctx, userID)
	return nil
}

// MarkAllRead marks every unread record for the user, returning the count.
func (hs *HistoryService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	count, err := hs.deliveryRepo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, utils.WrapDatabaseError(err, "mark all read")
	}

	hs.invalidate(ctx, userID)
	return count, nil
}

// MarkDelivered stamps the platform delivery acknowledgment on a record.
func (hs *HistoryService) MarkDelivered(ctx context.Context, recordID string) error {
	if err := hs.deliveryRepo.MarkDelivered(ctx, recordID); err != nil {
		return utils.WrapDatabaseError(err, "mark record delivered")
	}
	return nil
}

// Delete removes one record after an ownership check.
func (hs *HistoryService) Delete(ctx context.Context, recordID, userID string) error {
	record, err := hs.deliveryRepo.GetByID(ctx, recordID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return utils.NewNotFoundError("Delivery record")
		}
		return utils.WrapDatabaseError(err, "get delivery record")
	}
	if record.UserID.Hex() != userID {
		return utils.NewForbiddenError("record belongs to another user")
	}

	if err := hs.deliveryRepo.Delete(ctx, recordID); err != nil {
		return utils.WrapDatabaseError(err, "delete delivery record")
	}

	hs.invalidate(ctx, userID)
	return nil
}

// CleanupOlderThan trims a user's ledger to the retention window.
func (hs *HistoryService) CleanupOlderThan(ctx context.Context, userID string, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = hs.cfg.RetentionDays
	}
	cutoff := hs.now().AddDate(0, 0, -retentionDays)

	count, err := hs.deliveryRepo.DeleteOlderThan(ctx, userID, cutoff)
	if err != nil {
		return 0, utils.WrapDatabaseError(err, "cleanup history")
	}

	if count > 0 {
		hs.invalidate(ctx, userID)
	}
	return count, nil
}

// Sync replays a client's queued offline actions in order. Each action id is
// applied at most once; replays of already-applied ids report as duplicates.
// A failed action does not stop the rest of the batch.
func (hs *HistoryService) Sync(ctx context.Context, userID string, req models.SyncHistoryRequest) (*models.SyncHistoryResult, error) {
	result := &models.SyncHistoryResult{
		Applied:    []string{},
		Duplicates: []string{},
		Failed:     []string{},
	}

	for _, action := range req.Actions {
		action.QueuedAt = action.QueuedAt.UTC()

		if err := hs.deliveryRepo.RecordAction(ctx, &action); err != nil {
			if isDuplicateAction(err) {
				result.Duplicates = append(result.Duplicates, action.ActionID)
				continue
			}
			logrus.Warnf("Failed to record offline action %s: %v", action.ActionID, err)
			result.Failed = append(result.Failed, action.ActionID)
			continue
		}

		if err := hs.applyAction(ctx, userID, action); err != nil {
			logrus.Warnf("Failed to apply offline action %s (%s on %s): %v", action.ActionID, action.Action, action.RecordID, err)
			result.Failed = append(result.Failed, action.ActionID)
			continue
		}

		result.Applied = append(result.Applied, action.ActionID)
	}

	if len(result.Applied) > 0 {
		hs.invalidate(ctx, userID)
	}

	return result, nil
}

func (hs *HistoryService) applyAction(ctx context.Context, userID string, action models.OfflineAction) error {
	switch action.Action {
	case models.OfflineActionMarkRead:
		return hs.MarkRead(ctx, action.RecordID, userID)
	case models.OfflineActionDelete:
		return hs.Delete(ctx, action.RecordID, userID)
	default:
		return fmt.Errorf("unknown offline action %q", action.Action)
	}
}

// Cache plumbing. All failures are logged and swallowed; Redis being down
// never surfaces to the caller.

func (hs *HistoryService) cacheKey(req models.GetHistoryRequest) string {
	return fmt.Sprintf("history:%s:%s:%t:%d:%d", req.UserID, req.Type, req.UnreadOnly, req.Page, req.PageSize)
}

func (hs *HistoryService) staleKey(key string) string {
	return key + ":stale"
}

func (hs *HistoryService) readCache(ctx context.Context, key string) *historyPage {
	if hs.redisClient == nil {
		return nil
	}

	raw, err := hs.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			logrus.Debugf("History cache read failed for %s: %v", key, err)
		}
		return nil
	}

	var page historyPage
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		logrus.Debugf("History cache decode failed for %s: %v", key, err)
		return nil
	}

	return &page
}

func (hs *HistoryService) writeCache(ctx context.Context, key string, page historyPage) {
	if hs.redisClient == nil {
		return
	}

	raw, err := json.Marshal(page)
	if err != nil {
		return
	}

	if err := hs.redisClient.Set(ctx, key, raw, hs.cfg.CacheTTL).Err(); err != nil {
		logrus.Debugf("History cache write failed for %s: %v", key, err)
	}
	// The stale copy outlives the TTL and backs the degraded read path.
	if err := hs.redisClient.Set(ctx, hs.staleKey(key), raw, 24*time.Hour).Err(); err != nil {
		logrus.Debugf("History stale cache write failed for %s: %v", key, err)
	}
}

func (hs *HistoryService) invalidate(ctx context.Context, userID string) {
	if hs.redisClient == nil {
		return
	}

	pattern := fmt.Sprintf("history:%s:*", userID)
	keys, err := hs.redisClient.Keys(ctx, pattern).Result()
	if err != nil {
		logrus.Debugf("History cache invalidation scan failed for user %s: %v", userID, err)
		return
	}

	// Stale copies are kept on purpose; only the fresh keys go.
	var fresh []string
	for _, key := range keys {
		if len(key) < 6 || key[len(key)-6:] != ":stale" {
			fresh = append(fresh, key)
		}
	}
	if len(fresh) == 0 {
		return
	}
	if err := hs.redisClient.Del(ctx, fresh...).Err(); err != nil {
		logrus.Debugf("History cache invalidation failed for user %s: %v", userID, err)
	}
}

func isDuplicateAction(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
