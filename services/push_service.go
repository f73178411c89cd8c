package services

import (
	"context"
	"time"

	"elaro/models"
	"elaro/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// multicastPusher is satisfied by utils.PushProvider.
type multicastPusher interface {
	SendPushToMultipleDevices(ctx context.Context, deviceTokens []string, notification utils.PushNotification) ([]*utils.NotificationResult, error)
}

// directoryByIDs is the bulk user lookup the direct-send path needs.
type directoryByIDs interface {
	GetByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

// PushService handles admin direct sends: immediate multicast delivery that
// bypasses smart timing but still records the ledger. Preference gates do not
// apply here; direct sends are operational messages.
type PushService struct {
	userRepo     directoryByIDs
	deliveryRepo ledgerWriter
	provider     multicastPusher

	now func() time.Time
}

func NewPushService(userRepo directoryByIDs, deliveryRepo ledgerWriter, provider multicastPusher) *PushService {
	return &PushService{
		userRepo:     userRepo,
		deliveryRepo: deliveryRepo,
		provider:     provider,
		now:          time.Now,
	}
}

// SendDirect pushes to every requested user at once. Users without a device
// token fail terminally; one result per requested user id, in order.
func (ps *PushService) SendDirect(ctx context.Context, req models.SendNotificationRequest) ([]models.SendResult, error) {
	users, err := ps.userRepo.GetByIDs(ctx, req.UserIDs)
	if err != nil {
		return nil, utils.WrapDatabaseError(err, "get users")
	}

	byID := make(map[string]*models.User, len(users))
	for i := range users {
		byID[users[i].ID.Hex()] = &users[i]
	}

	var tokens []string
	var tokenOwners []string
	results := make([]models.SendResult, len(req.UserIDs))

	for i, userID := range req.UserIDs {
		user, found := byID[userID]
		if !found {
			results[i] = models.SendResult{Success: false, Error: "user not found"}
			continue
		}
		if user.DeviceToken == "" {
			results[i] = models.SendResult{Success: false, Error: "no device token registered"}
			continue
		}
		tokens = append(tokens, user.DeviceToken)
		tokenOwners = append(tokenOwners, userID)
	}

	if len(tokens) == 0 {
		return results, nil
	}

	push := utils.PushNotification{
		Title: req.Title,
		Body:  req.Body,
		Data:  stringifyData(req.Type, req.Data),
		Sound: "default",
	}

	sendResults, err := ps.provider.SendPushToMultipleDevices(ctx, tokens, push)
	if err != nil {
		return nil, utils.WrapError(err, utils.ErrCodePushProvider, "multicast send failed")
	}

	sentAt := ps.now()
	resultIdx := indexByUser(req.UserIDs)

	for i, sendResult := range sendResults {
		userID := tokenOwners[i]
		pos := resultIdx[userID]

		if !sendResult.Success {
			results[pos] = models.SendResult{Success: false, Error: sendResult.Error}
			continue
		}

		results[pos] = models.SendResult{Success: true}

		objectID, err := primitive.ObjectIDFromHex(userID)
		if err != nil {
			continue
		}
		record := &models.DeliveryRecord{
			NotificationID: primitive.NewObjectID(),
			UserID:         objectID,
			Type:           req.Type,
			Title:          req.Title,
			Body:           req.Body,
			Priority:       req.Priority,
			SentAt:         sentAt,
		}
		if err := ps.deliveryRepo.Create(ctx, record); err != nil {
			logrus.Errorf("Failed to append delivery record for direct send to user %s: %v", userID, err)
		}
	}

	return results, nil
}

func indexByUser(userIDs []string) map[string]int {
	idx := make(map[string]int, len(userIDs))
	for i, id := range userIDs {
		idx[id] = i
	}
	return idx
}

func stringifyData(notificationType string, data map[string]interface{}) map[string]string {
	out := map[string]string{"type": notificationType}
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
