package services

import (
	"context"
	"testing"

	"elaro/models"
	"elaro/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestSendDirectMixedOutcomes(t *testing.T) {
	withToken := &models.User{ID: primitive.NewObjectID(), DeviceToken: "token-1"}
	noToken := &models.User{ID: primitive.NewObjectID()}
	missing := primitive.NewObjectID()

	ledger := &fakeLedger{}
	provider := &fakePusher{}
	ps := NewPushService(newFakeUserDir(withToken, noToken), ledger, provider)
	ps.now = fixedClock(baseNow)

	req := models.SendNotificationRequest{
		UserIDs: []string{withToken.ID.Hex(), noToken.ID.Hex(), missing.Hex()},
		Type:    models.NotificationTypeUpdate,
		Title:   "Maintenance tonight",
		Body:    "Sync may be unavailable from 02:00 to 03:00",
	}

	results, err := ps.SendDirect(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.Equal(t, "no device token registered", results[1].Error)
	assert.Equal(t, "user not found", results[2].Error)

	assert.Equal(t, []string{"token-1"}, provider.tokens)
	require.Len(t, ledger.records, 1)
	assert.Equal(t, withToken.ID, ledger.records[0].UserID)
	assert.Equal(t, baseNow, ledger.records[0].SentAt)
}

func TestSendDirectNoDeliverableUsers(t *testing.T) {
	noToken := &models.User{ID: primitive.NewObjectID()}
	provider := &fakePusher{}
	ps := NewPushService(newFakeUserDir(noToken), &fakeLedger{}, provider)

	results, err := ps.SendDirect(context.Background(), models.SendNotificationRequest{
		UserIDs: []string{noToken.ID.Hex()},
		Type:    models.NotificationTypeUpdate,
		Title:   "t",
		Body:    "b",
	})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Empty(t, provider.tokens)
}

func TestSendDirectProviderFailure(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), DeviceToken: "token-1"}
	provider := &fakePusher{pushErr: assert.AnError}
	ps := NewPushService(newFakeUserDir(user), &fakeLedger{}, provider)

	_, err := ps.SendDirect(context.Background(), models.SendNotificationRequest{
		UserIDs: []string{user.ID.Hex()},
		Type:    models.NotificationTypeUpdate,
		Title:   "t",
		Body:    "b",
	})
	require.Error(t, err)

	serviceErr, ok := utils.GetServiceError(err)
	require.True(t, ok)
	assert.Equal(t, utils.ErrCodePushProvider, serviceErr.Code)
}

func TestSendDirectPartialProviderResults(t *testing.T) {
	userA := &models.User{ID: primitive.NewObjectID(), DeviceToken: "token-a"}
	userB := &models.User{ID: primitive.NewObjectID(), DeviceToken: "token-b"}

	ledger := &fakeLedger{}
	provider := &fakePusher{pushResults: []*utils.NotificationResult{
		{Success: true, MessageID: "msg-a"},
		{Success: false, Error: "unregistered token"},
	}}
	ps := NewPushService(newFakeUserDir(userA, userB), ledger, provider)
	ps.now = fixedClock(baseNow)

	results, err := ps.SendDirect(context.Background(), models.SendNotificationRequest{
		UserIDs: []string{userA.ID.Hex(), userB.ID.Hex()},
		Type:    models.NotificationTypeUpdate,
		Title:   "t",
		Body:    "b",
	})
	require.NoError(t, err)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, "unregistered token", results[1].Error)
	assert.Len(t, ledger.records, 1)
}
