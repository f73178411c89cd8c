package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationPreference is the per-user settings singleton. Created with
// defaults on first access, updated via partial merge, never deleted (only
// reset to defaults).
type NotificationPreference struct {
	ID     primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID primitive.ObjectID `json:"userId" bson:"userId"`

	// Global Settings
	MasterToggle bool       `json:"masterToggle" bson:"masterToggle"`
	DoNotDisturb bool       `json:"doNotDisturb" bson:"doNotDisturb"`
	QuietHours   QuietHours `json:"quietHours" bson:"quietHours"`

	// Smart Timing
	PreferredTimes PreferredTimes `json:"preferredTimes" bson:"preferredTimes"`

	// Per-type toggles
	Types map[string]bool `json:"types" bson:"types"`

	// Frequency Controls
	Frequency FrequencySettings `json:"frequency" bson:"frequency"`

	// Advanced (device-side presentation)
	Advanced AdvancedSettings `json:"advanced" bson:"advanced"`

	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

type QuietHours struct {
	Enabled bool   `json:"enabled" bson:"enabled"`
	Start   string `json:"start" bson:"start"` // HH:MM, user-local wall clock
	End     string `json:"end" bson:"end"`     // HH:MM, may precede Start (overnight)
}

type PreferredTimes struct {
	Morning         string `json:"morning" bson:"morning"` // HH:MM
	Evening         string `json:"evening" bson:"evening"` // HH:MM
	WeekendBehavior string `json:"weekendBehavior" bson:"weekendBehavior"` // same, shifted, off
}

type FrequencySettings struct {
	MaxPerDay        int    `json:"maxPerDay" bson:"maxPerDay"`
	CooldownMinutes  int    `json:"cooldownMinutes" bson:"cooldownMinutes"`
	SummaryFrequency string `json:"summaryFrequency" bson:"summaryFrequency"` // immediate, daily, weekly
}

type AdvancedSettings struct {
	Vibration bool `json:"vibration" bson:"vibration"`
	Sound     bool `json:"sound" bson:"sound"`
	Badges    bool `json:"badges" bson:"badges"`
	Preview   bool `json:"preview" bson:"preview"`
}

// Summary Frequency Constants
const (
	SummaryImmediate = "immediate"
	SummaryDaily     = "daily"
	SummaryWeekly    = "weekly"
)

// Weekend Behavior Constants
const (
	WeekendSame    = "same"
	WeekendShifted = "shifted"
	WeekendOff     = "off"
)

// DefaultPreferences returns the settings a user gets before saving anything.
func DefaultPreferences(userID primitive.ObjectID) *NotificationPreference {
	types := make(map[string]bool, len(TypeLabels))
	for t := range TypeLabels {
		types[t] = t != NotificationTypeMarketing
	}

	return &NotificationPreference{
		UserID:       userID,
		MasterToggle: true,
		DoNotDisturb: false,
		QuietHours: QuietHours{
			Enabled: true,
			Start:   "22:00",
			End:     "08:00",
		},
		PreferredTimes: PreferredTimes{
			Morning:         "09:00",
			Evening:         "18:00",
			WeekendBehavior: WeekendShifted,
		},
		Types: types,
		Frequency: FrequencySettings{
			MaxPerDay:        10,
			CooldownMinutes:  30,
			SummaryFrequency: SummaryImmediate,
		},
		Advanced: AdvancedSettings{
			Vibration: true,
			Sound:     true,
			Badges:    true,
			Preview:   true,
		},
		UpdatedAt: time.Now(),
	}
}

// UpdatePreferencesRequest is a partial merge: nil fields keep their current
// values.
type UpdatePreferencesRequest struct {
	MasterToggle   *bool              `json:"masterToggle,omitempty"`
	DoNotDisturb   *bool              `json:"doNotDisturb,omitempty"`
	QuietHours     *QuietHours        `json:"quietHours,omitempty"`
	PreferredTimes *PreferredTimes    `json:"preferredTimes,omitempty"`
	Types          map[string]bool    `json:"types,omitempty"`
	Frequency      *FrequencySettings `json:"frequency,omitempty"`
	Advanced       *AdvancedSettings  `json:"advanced,omitempty"`
}

// ValidationReport is the outcome of preference validation. Warnings do not
// block persistence.
type ValidationReport struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
