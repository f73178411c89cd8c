package services

import (
	"context"
	"fmt"
	"strings"

	"elaro/models"
	"elaro/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// preferenceStore is satisfied by repositories.PreferenceRepository.
type preferenceStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.NotificationPreference, error)
	Upsert(ctx context.Context, prefs *models.NotificationPreference) error
}

type PreferenceService struct {
	prefRepo  preferenceStore
	validator *utils.ValidationService
}

func NewPreferenceService(prefRepo preferenceStore) *PreferenceService {
	return &PreferenceService{
		prefRepo:  prefRepo,
		validator: utils.NewValidationService(),
	}
}

// Get returns the user's preferences, falling back to defaults both when
// nothing is persisted and when the store read fails. Scheduling must keep
// working with defaults rather than erroring out.
func (ps *PreferenceService) Get(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, utils.NewBadRequestError("invalid user ID")
	}

	prefs, err := ps.prefRepo.GetByUserID(ctx, userID)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			logrus.Warnf("Preference read failed for user %s, using defaults: %v", userID, err)
		}
		return models.DefaultPreferences(objectID), nil
	}

	return prefs, nil
}

// Update merges the partial request onto the current preferences, validates
// the merged result, and persists it. Validation failures reject
// synchronously before any write.
func (ps *PreferenceService) Update(ctx context.Context, userID string, req models.UpdatePreferencesRequest) (*models.NotificationPreference, error) {
	current, err := ps.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	merged := mergePreferences(current, req)

	report := ps.Validate(merged)
	if !report.IsValid {
		return nil, utils.NewValidationError(strings.Join(report.Errors, "; "))
	}
	for _, warning := range report.Warnings {
		logrus.Warnf("Preference warning for user %s: %s", userID, warning)
	}

	if err := ps.prefRepo.Upsert(ctx, merged); err != nil {
		return nil, utils.WrapDatabaseError(err, "update preferences")
	}

	return merged, nil
}

// Reset restores defaults. Preferences are never deleted outright.
func (ps *PreferenceService) Reset(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, utils.NewBadRequestError("invalid user ID")
	}

	defaults := models.DefaultPreferences(objectID)
	if err := ps.prefRepo.Upsert(ctx, defaults); err != nil {
		return nil, utils.WrapDatabaseError(err, "reset preferences")
	}

	return defaults, nil
}

// Validate checks the merged preference document. Warnings flag configurations
// that are legal but probably not what the user wants.
func (ps *PreferenceService) Validate(prefs *models.NotificationPreference) models.ValidationReport {
	report := models.ValidationReport{IsValid: true}

	addError := func(format string, args ...interface{}) {
		report.IsValid = false
		report.Errors = append(report.Errors, fmt.Sprintf(format, args...))
	}

	if !utils.ValidateTimeFormat(prefs.QuietHours.Start) {
		addError("quiet hours start %q is not a valid HH:MM time", prefs.QuietHours.Start)
	}
	if !utils.ValidateTimeFormat(prefs.QuietHours.End) {
		addError("quiet hours end %q is not a valid HH:MM time", prefs.QuietHours.End)
	}
	if !utils.ValidateTimeFormat(prefs.PreferredTimes.Morning) {
		addError("preferred morning time %q is not a valid HH:MM time", prefs.PreferredTimes.Morning)
	}
	if !utils.ValidateTimeFormat(prefs.PreferredTimes.Evening) {
		addError("preferred evening time %q is not a valid HH:MM time", prefs.PreferredTimes.Evening)
	}

	switch prefs.PreferredTimes.WeekendBehavior {
	case models.WeekendSame, models.WeekendShifted, models.WeekendOff:
	default:
		addError("weekend behavior %q is not one of same, shifted, off", prefs.PreferredTimes.WeekendBehavior)
	}

	if prefs.Frequency.MaxPerDay < 1 || prefs.Frequency.MaxPerDay > 50 {
		addError("maxPerDay must be between 1 and 50, got %d", prefs.Frequency.MaxPerDay)
	}
	if prefs.Frequency.CooldownMinutes < 0 || prefs.Frequency.CooldownMinutes > 1440 {
		addError("cooldownMinutes must be between 0 and 1440, got %d", prefs.Frequency.CooldownMinutes)
	}

	switch prefs.Frequency.SummaryFrequency {
	case models.SummaryImmediate, models.SummaryDaily, models.SummaryWeekly:
	default:
		addError("summary frequency %q is not one of immediate, daily, weekly", prefs.Frequency.SummaryFrequency)
	}

	if prefs.MasterToggle {
		anyEnabled := false
		for _, enabled := range prefs.Types {
			if enabled {
				anyEnabled = true
				break
			}
		}
		if !anyEnabled && len(prefs.Types) > 0 {
			report.Warnings = append(report.Warnings, "notifications are on but every type is disabled")
		}
	}
	if prefs.Frequency.MaxPerDay > 20 {
		report.Warnings = append(report.Warnings, "more than 20 notifications per day risks notification fatigue")
	}

	return report
}

// mergePreferences applies the partial update, leaving nil fields untouched.
func mergePreferences(current *models.NotificationPreference, req models.UpdatePreferencesRequest) *models.NotificationPreference {
	merged := *current
	merged.Types = make(map[string]bool, len(current.Types))
	for k, v := range current.Types {
		merged.Types[k] = v
	}

	if req.MasterToggle != nil {
		merged.MasterToggle = *req.MasterToggle
	}
	if req.DoNotDisturb != nil {
		merged.DoNotDisturb = *req.DoNotDisturb
	}
	if req.QuietHours != nil {
		merged.QuietHours = *req.QuietHours
	}
	if req.PreferredTimes != nil {
		merged.PreferredTimes = *req.PreferredTimes
	}
	if req.Frequency != nil {
		merged.Frequency = *req.Frequency
	}
	if req.Advanced != nil {
		merged.Advanced = *req.Advanced
	}
	for k, v := range req.Types {
		merged.Types[k] = v
	}

	return &merged
}
