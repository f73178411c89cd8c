package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WeeklyReport is one generated aggregate per user per week, idempotent by
// (UserID, WeekStart).
type WeeklyReport struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID    primitive.ObjectID `json:"userId" bson:"userId"`
	WeekStart time.Time          `json:"weekStart" bson:"weekStart"`
	WeekEnd   time.Time          `json:"weekEnd" bson:"weekEnd"`

	Status string     `json:"status" bson:"status"` // generating, completed, failed
	Data   ReportData `json:"data" bson:"data"`
	Error  string     `json:"error,omitempty" bson:"error,omitempty"`

	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
}

const (
	ReportStatusGenerating = "generating"
	ReportStatusCompleted  = "completed"
	ReportStatusFailed     = "failed"
)

type ReportData struct {
	StudyHours        float64        `json:"studyHours" bson:"studyHours"`
	SessionCount      int            `json:"sessionCount" bson:"sessionCount"`
	FocusSessions     int            `json:"focusSessions" bson:"focusSessions"`
	ProductivityScore float64        `json:"productivityScore" bson:"productivityScore"`
	AssignmentsDone   int            `json:"assignmentsDone" bson:"assignmentsDone"`
	NotificationsSent int            `json:"notificationsSent" bson:"notificationsSent"`
	NotificationsRead int            `json:"notificationsRead" bson:"notificationsRead"`
	EngagementRate    float64        `json:"engagementRate" bson:"engagementRate"`
	ByDay             map[string]int `json:"byDay" bson:"byDay"`
}

// StudySession rows feed the weekly aggregates.
type StudySession struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID    primitive.ObjectID `json:"userId" bson:"userId"`
	CourseID  primitive.ObjectID `json:"courseId,omitempty" bson:"courseId,omitempty"`
	StartedAt time.Time          `json:"startedAt" bson:"startedAt"`
	EndedAt   time.Time          `json:"endedAt" bson:"endedAt"`
	Completed bool               `json:"completed" bson:"completed"`
}

// ProcessingLog tracks one batch run, updated incrementally as chunks finish.
type ProcessingLog struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RunType   string             `json:"runType" bson:"runType"` // weekly_reports, retry_failed
	StartedAt time.Time          `json:"startedAt" bson:"startedAt"`
	EndedAt   *time.Time         `json:"endedAt,omitempty" bson:"endedAt,omitempty"`

	Eligible   int `json:"eligible" bson:"eligible"`
	Processed  int `json:"processed" bson:"processed"`
	Successful int `json:"successful" bson:"successful"`
	Failed     int `json:"failed" bson:"failed"`
	Skipped    int `json:"skipped" bson:"skipped"`

	Status string `json:"status" bson:"status"` // running, completed, failed
}

const (
	RunTypeWeeklyReports = "weekly_reports"
	RunTypeRetryFailed   = "retry_failed"

	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)
