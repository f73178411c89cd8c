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

func TestGetReturnsDefaultsWhenNothingPersisted(t *testing.T) {
	userID := primitive.NewObjectID()
	ps := NewPreferenceService(&fakePrefStore{})

	prefs, err := ps.Get(context.Background(), userID.Hex())
	require.NoError(t, err)

	assert.Equal(t, userID, prefs.UserID)
	assert.True(t, prefs.MasterToggle)
	assert.Equal(t, "22:00", prefs.QuietHours.Start)
	assert.Equal(t, 10, prefs.Frequency.MaxPerDay)
	assert.False(t, prefs.Types[models.NotificationTypeMarketing])
	assert.True(t, prefs.Types[models.NotificationTypeReminder])
}

func TestGetReturnsDefaultsOnStoreFailure(t *testing.T) {
	userID := primitive.NewObjectID()
	ps := NewPreferenceService(&fakePrefStore{getErr: assert.AnError})

	prefs, err := ps.Get(context.Background(), userID.Hex())
	require.NoError(t, err)
	assert.True(t, prefs.MasterToggle)
}

func TestGetRejectsMalformedUserID(t *testing.T) {
	ps := NewPreferenceService(&fakePrefStore{})

	_, err := ps.Get(context.Background(), "not-an-object-id")
	require.Error(t, err)

	serviceErr, ok := utils.GetServiceError(err)
	require.True(t, ok)
	assert.Equal(t, "BAD_REQUEST", serviceErr.Code)
}

func TestUpdateMergesPartialRequest(t *testing.T) {
	userID := primitive.NewObjectID()
	store := &fakePrefStore{prefs: models.DefaultPreferences(userID)}
	ps := NewPreferenceService(store)

	updated, err := ps.Update(context.Background(), userID.Hex(), models.UpdatePreferencesRequest{
		DoNotDisturb: utils.BoolPtr(true),
		Types:        map[string]bool{models.NotificationTypeMarketing: true},
	})
	require.NoError(t, err)

	assert.True(t, updated.DoNotDisturb)
	assert.True(t, updated.Types[models.NotificationTypeMarketing])
	// Untouched fields keep their values.
	assert.True(t, updated.MasterToggle)
	assert.Equal(t, "09:00", updated.PreferredTimes.Morning)
	require.NotNil(t, store.upserted)
}

func TestUpdateRejectsInvalidTimeBeforeWrite(t *testing.T) {
	userID := primitive.NewObjectID()
	store := &fakePrefStore{prefs: models.DefaultPreferences(userID)}
	ps := NewPreferenceService(store)

	_, err := ps.Update(context.Background(), userID.Hex(), models.UpdatePreferencesRequest{
		QuietHours: &models.QuietHours{Enabled: true, Start: "25:00", End: "08:00"},
	})
	require.Error(t, err)
	assert.Nil(t, store.upserted)

	serviceErr, ok := utils.GetServiceError(err)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", serviceErr.Code)
}

func TestUpdateRejectsOutOfRangeFrequency(t *testing.T) {
	userID := primitive.NewObjectID()
	store := &fakePrefStore{prefs: models.DefaultPreferences(userID)}
	ps := NewPreferenceService(store)

	_, err := ps.Update(context.Background(), userID.Hex(), models.UpdatePreferencesRequest{
		Frequency: &models.FrequencySettings{MaxPerDay: 0, CooldownMinutes: 30, SummaryFrequency: models.SummaryImmediate},
	})
	require.Error(t, err)
	assert.Nil(t, store.upserted)
}

func TestResetRestoresDefaults(t *testing.T) {
	userID := primitive.NewObjectID()
	custom := models.DefaultPreferences(userID)
	custom.MasterToggle = false
	custom.Frequency.MaxPerDay = 3
	store := &fakePrefStore{prefs: custom}
	ps := NewPreferenceService(store)

	prefs, err := ps.Reset(context.Background(), userID.Hex())
	require.NoError(t, err)

	assert.True(t, prefs.MasterToggle)
	assert.Equal(t, 10, prefs.Frequency.MaxPerDay)
	require.NotNil(t, store.upserted)
}

func TestValidateWarnings(t *testing.T) {
	ps := NewPreferenceService(&fakePrefStore{})

	prefs := models.DefaultPreferences(primitive.NewObjectID())
	prefs.Frequency.MaxPerDay = 25
	for k := range prefs.Types {
		prefs.Types[k] = false
	}

	report := ps.Validate(prefs)
	assert.True(t, report.IsValid)
	assert.Len(t, report.Warnings, 2)
}
