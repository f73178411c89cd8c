package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeliveryRecord is the append-only ledger row behind cooldown and batching
// decisions. Invariant: SentAt <= DeliveredAt <= OpenedAt when present.
type DeliveryRecord struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	NotificationID primitive.ObjectID `json:"notificationId" bson:"notificationId"`
	UserID         primitive.ObjectID `json:"userId" bson:"userId"`

	Type     string `json:"type" bson:"type"`
	Title    string `json:"title" bson:"title"`
	Body     string `json:"body" bson:"body"`
	Priority string `json:"priority" bson:"priority"`

	SentAt      time.Time  `json:"sentAt" bson:"sentAt"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty" bson:"deliveredAt,omitempty"`
	OpenedAt    *time.Time `json:"openedAt,omitempty" bson:"openedAt,omitempty"`
	DismissedAt *time.Time `json:"dismissedAt,omitempty" bson:"dismissedAt,omitempty"`

	IsRead bool       `json:"isRead" bson:"isRead"`
	ReadAt *time.Time `json:"readAt,omitempty" bson:"readAt,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// GetHistoryRequest filters the history listing.
type GetHistoryRequest struct {
	UserID     string `json:"userId"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	Type       string `json:"type"`
	UnreadOnly bool   `json:"unreadOnly"`
}

// OfflineAction is one queued history mutation recorded while the client was
// disconnected. Replayed in order on sync, deduplicated by ActionID.
type OfflineAction struct {
	ActionID  string    `json:"actionId" bson:"actionId" validate:"required,uuid4"`
	Action    string    `json:"action" bson:"action" validate:"required,oneof=mark_read delete"`
	RecordID  string    `json:"recordId" bson:"recordId" validate:"required"`
	QueuedAt  time.Time `json:"queuedAt" bson:"queuedAt"`
	Attempts  int       `json:"attempts" bson:"attempts"`
	LastError string    `json:"lastError,omitempty" bson:"lastError,omitempty"`
}

const (
	OfflineActionMarkRead = "mark_read"
	OfflineActionDelete   = "delete"
)

type SyncHistoryRequest struct {
	Actions []OfflineAction `json:"actions" validate:"required,min=1,max=500,dive"`
}

// SyncHistoryResult reports per-action replay outcomes. Failed actions stay
// queued client-side for the next sync opportunity.
type SyncHistoryResult struct {
	Applied    []string `json:"applied"`
	Duplicates []string `json:"duplicates"`
	Failed     []string `json:"failed"`
}
