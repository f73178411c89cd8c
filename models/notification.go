package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Notification struct {
	ID     primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID primitive.ObjectID `json:"userId" bson:"userId"`

	// Notification Content
	Type  string                 `json:"type" bson:"type"`
	Title string                 `json:"title" bson:"title"`
	Body  string                 `json:"body" bson:"body"`
	Data  map[string]interface{} `json:"data,omitempty" bson:"data,omitempty"`

	// Notification State
	Status   string `json:"status" bson:"status"`     // pending, sending, sent, delivered, failed, cancelled
	Priority string `json:"priority" bson:"priority"` // low, normal, high, urgent

	// Delivery Methods
	Channels NotificationChannels `json:"channels" bson:"channels"`

	// Scheduling. ScheduledFor is mutable until the notification is sent.
	ScheduledFor time.Time `json:"scheduledFor,omitempty" bson:"scheduledFor,omitempty"`
	SentAt       time.Time `json:"sentAt,omitempty" bson:"sentAt,omitempty"`

	// References (course, assignment, study session, ...)
	RelatedID   primitive.ObjectID `json:"relatedId,omitempty" bson:"relatedId,omitempty"`
	RelatedType string             `json:"relatedType,omitempty" bson:"relatedType,omitempty"`

	// Retry Logic
	RetryCount int       `json:"retryCount" bson:"retryCount"`
	LastRetry  time.Time `json:"lastRetry,omitempty" bson:"lastRetry,omitempty"`
	LastError  string    `json:"lastError,omitempty" bson:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
}

type NotificationChannels struct {
	Push  bool `json:"push" bson:"push"`
	SMS   bool `json:"sms" bson:"sms"`
	InApp bool `json:"inApp" bson:"inApp"`
	Local bool `json:"local" bson:"local"`
}

// Notification Type Constants
const (
	NotificationTypeReminder    = "reminder"
	NotificationTypeAssignment  = "assignment"
	NotificationTypeLecture     = "lecture"
	NotificationTypeSRS         = "srs"
	NotificationTypeAchievement = "achievement"
	NotificationTypeUpdate      = "update"
	NotificationTypeMarketing   = "marketing"
)

// Notification Status Constants
const (
	NotificationStatusPending   = "pending"
	NotificationStatusSending   = "sending"
	NotificationStatusSent      = "sent"
	NotificationStatusDelivered = "delivered"
	NotificationStatusFailed    = "failed"
	NotificationStatusCancelled = "cancelled"
)

// Reschedule Reason Constants
const (
	RescheduleReasonUserBusy       = "user_busy"
	RescheduleReasonQuietHours     = "quiet_hours"
	RescheduleReasonFrequencyLimit = "frequency_limit"
	RescheduleReasonOther          = "other"
)

// TypeLabels maps notification types to the human-readable label used when
// batching ("3 Assignments", "2 Reminders", ...).
var TypeLabels = map[string]string{
	NotificationTypeReminder:    "Reminders",
	NotificationTypeAssignment:  "Assignments",
	NotificationTypeLecture:     "Lectures",
	NotificationTypeSRS:         "Reviews",
	NotificationTypeAchievement: "Achievements",
	NotificationTypeUpdate:      "Updates",
	NotificationTypeMarketing:   "Offers",
}

// OptimalTime is a derived engagement cache entry, never persisted as ground
// truth. Recomputed from a rolling window of delivery records.
type OptimalTime struct {
	Hour            int     `json:"hour"`
	DayOfWeek       int     `json:"dayOfWeek"` // 0=Sunday
	EngagementScore float64 `json:"engagementScore"`
	Context         string  `json:"context"` // morning_routine, evening_review, ...
}

// LocalTrigger describes an on-device notification trigger handed to the OS
// scheduler. Location triggers are explicitly unsupported.
type LocalTrigger struct {
	Type     string        `json:"type"` // date, interval, location
	FireAt   time.Time     `json:"fireAt,omitempty"`
	Interval time.Duration `json:"interval,omitempty"`
	Repeats  bool          `json:"repeats"`
}

const (
	LocalTriggerDate     = "date"
	LocalTriggerInterval = "interval"
	LocalTriggerLocation = "location"
)

// Request DTOs

type ScheduleNotificationRequest struct {
	Type     string                 `json:"type" validate:"required,notification_type"`
	Title    string                 `json:"title" validate:"required,max=200"`
	Body     string                 `json:"body" validate:"required,max=1000"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Priority string                 `json:"priority" validate:"omitempty,notification_priority"`
	Channels NotificationChannels   `json:"channels"`
}

type BatchNotificationsRequest struct {
	Intents []ScheduleNotificationRequest `json:"intents" validate:"required,min=1,max=100,dive"`
}

type RescheduleNotificationRequest struct {
	Reason string `json:"reason" validate:"required,reschedule_reason"`
}

type SendNotificationRequest struct {
	UserIDs  []string               `json:"userIds" validate:"required,min=1"`
	Type     string                 `json:"type" validate:"required,notification_type"`
	Title    string                 `json:"title" validate:"required"`
	Body     string                 `json:"body" validate:"required"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Priority string                 `json:"priority" validate:"omitempty,notification_priority"`
	Channels NotificationChannels   `json:"channels"`
}

type GetScheduledRequest struct {
	UserID   string `json:"userId"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	Type     string `json:"type"`
}

// SendResult reports the outcome of a single delivery attempt. Terminal
// failures (no device token, notifications disabled) come back as
// Success=false rather than an error.
type SendResult struct {
	Success        bool   `json:"success"`
	NotificationID string `json:"notificationId,omitempty"`
	Error          string `json:"error,omitempty"`
}
