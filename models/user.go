package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID    primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Email string             `json:"email" bson:"email"`
	Name  string             `json:"name" bson:"name"`
	Phone string             `json:"phone,omitempty" bson:"phone,omitempty"`

	// Subscription tier: free, plus, premium, admin
	Tier string `json:"tier" bson:"tier"`
	Role string `json:"role" bson:"role"` // user, admin

	// Push registration. Empty token means the device never registered and
	// push delivery is a terminal failure for that user.
	DeviceToken    string `json:"deviceToken,omitempty" bson:"deviceToken,omitempty"`
	DevicePlatform string `json:"devicePlatform,omitempty" bson:"devicePlatform,omitempty"` // ios, android

	Timezone string `json:"timezone" bson:"timezone"`

	IsActive     bool      `json:"isActive" bson:"isActive"`
	LastActiveAt time.Time `json:"lastActiveAt" bson:"lastActiveAt"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Tier Constants
const (
	TierFree    = "free"
	TierPlus    = "plus"
	TierPremium = "premium"
	TierAdmin   = "admin"
)

// IsPaid reports whether the user is on a paid tier (weekly report
// eligibility).
func (u *User) IsPaid() bool {
	return u.Tier == TierPlus || u.Tier == TierPremium || u.Tier == TierAdmin
}

type RegisterDeviceRequest struct {
	DeviceToken string `json:"deviceToken" validate:"required"`
	Platform    string `json:"platform" validate:"required,oneof=ios android"`
	Timezone    string `json:"timezone" validate:"omitempty,timezone"`
}
